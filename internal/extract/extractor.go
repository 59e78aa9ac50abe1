// Package extract turns one PDF page into text, preferring the embedded text
// layer and falling back to OCR.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/tocgest/internal/document"
	"github.com/dgallion1/tocgest/internal/pdftext"
)

// ErrEmptyOCR reports an OCR run that finished without recognizing text.
var ErrEmptyOCR = errors.New("ocr produced no text")

// Extractor produces a document.Page for a page index. It never returns an
// error: failures are reported through Page.Method and Page.Err.
type Extractor struct {
	text    pdftext.Source
	ocr     pdftext.Source // nil disables OCR
	quality Quality
	stats   *LatencyStats
	log     *slog.Logger
}

// NewExtractor builds an extractor. text is tried first; ocr runs when text
// is missing or fails the quality check.
func NewExtractor(text, ocr pdftext.Source, quality Quality, stats *LatencyStats, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		text:    text,
		ocr:     ocr,
		quality: quality,
		stats:   stats,
		log:     log,
	}
}

// Extract returns the text of page index.
func (e *Extractor) Extract(ctx context.Context, doc *document.Document, index int) document.Page {
	start := time.Now()
	log := e.log.With("doc", doc.Name, "page", index)

	page := e.extract(ctx, log, doc, index)
	page.Index = index
	page.Duration = time.Since(start)

	if e.stats != nil {
		e.stats.RecordPage(page.Method)
	}
	if page.Method == document.MethodFailed {
		log.Warn("page extraction failed", "error", page.Err)
	} else {
		log.Debug("page extracted", "method", page.Method, "chars", len(page.Text), "duration", page.Duration)
	}
	return page
}

func (e *Extractor) extract(ctx context.Context, log *slog.Logger, doc *document.Document, index int) document.Page {
	var (
		native    string
		nativeErr error
	)
	if e.text != nil {
		native, nativeErr = e.text.PageText(ctx, doc, index)
		if nativeErr == nil && e.quality.Usable(native) {
			return document.Page{Text: native, Method: document.MethodNative}
		}
		if nativeErr != nil {
			log.Debug("native text unavailable", "error", nativeErr)
		}
	}

	if e.ocr == nil || ctx.Err() != nil {
		return fallback(native, nativeErr, ctx.Err())
	}

	ocrStart := time.Now()
	text, err := e.ocr.PageText(ctx, doc, index)
	if e.stats != nil {
		e.stats.RecordOCR(time.Since(ocrStart))
	}
	if err == nil && strings.TrimSpace(text) != "" {
		return document.Page{Text: text, Method: document.MethodOCR}
	}
	if err == nil {
		err = ErrEmptyOCR
	}
	log.Debug("ocr failed", "error", err)

	return fallback(native, nativeErr, err)
}

// fallback keeps whatever native text exists when OCR cannot improve on it.
// A page with no text at all is failed.
func fallback(native string, nativeErr, ocrErr error) document.Page {
	if strings.TrimSpace(native) != "" {
		p := document.Page{Text: native, Method: document.MethodNative}
		if ocrErr != nil {
			p.Err = "ocr: " + ocrErr.Error()
		}
		return p
	}

	var parts []string
	if nativeErr != nil {
		parts = append(parts, "native: "+nativeErr.Error())
	}
	if ocrErr != nil {
		parts = append(parts, "ocr: "+ocrErr.Error())
	}
	if len(parts) == 0 {
		parts = append(parts, "no text on page")
	}
	return document.Page{Method: document.MethodFailed, Err: strings.Join(parts, "; ")}
}
