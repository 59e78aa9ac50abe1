// Package pdftext pulls the embedded text layer out of PDF pages.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/tocgest/internal/document"
	"github.com/dgallion1/tocgest/internal/toolexec"
)

// ErrPageOutOfRange is returned for indices outside the document.
var ErrPageOutOfRange = errors.New("page index out of range")

// Source returns the text layer of a single page (0-based index).
type Source interface {
	PageText(ctx context.Context, doc *document.Document, index int) (string, error)
}

// Native reads text with ledongthuc/pdf.
type Native struct{}

func (Native) PageText(ctx context.Context, doc *document.Document, index int) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if index < 0 || index >= doc.PageCount {
		return "", fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}

	// The library panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf text panic on page %d: %v", index+1, r)
		}
	}()

	data := doc.Bytes()
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	if index >= reader.NumPage() {
		return "", fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}

	page := reader.Page(index + 1)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// Pdftotext shells out to poppler's pdftotext, which copes with font
// encodings the Go library does not.
type Pdftotext struct {
	Path   string
	Runner toolexec.Runner
}

func NewPdftotext(path string, runner toolexec.Runner) *Pdftotext {
	if path == "" {
		path = "pdftotext"
	}
	if runner == nil {
		runner = toolexec.ExecRunner{}
	}
	return &Pdftotext{Path: path, Runner: runner}
}

func (p *Pdftotext) PageText(ctx context.Context, doc *document.Document, index int) (string, error) {
	if index < 0 || index >= doc.PageCount {
		return "", fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	path, err := doc.Path()
	if err != nil {
		return "", err
	}
	page := strconv.Itoa(index + 1)
	out, err := p.Runner.Run(ctx, p.Path, "-layout", "-enc", "UTF-8", "-f", page, "-l", page, path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

// Chain tries each source in order and returns the first usable text.
type Chain struct {
	Sources []Source
	Usable  func(string) bool
}

func (c Chain) PageText(ctx context.Context, doc *document.Document, index int) (string, error) {
	var (
		best    string
		lastErr error
	)
	for _, src := range c.Sources {
		text, err := src.PageText(ctx, doc, index)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return best, ctx.Err()
			}
			continue
		}
		if c.Usable == nil || c.Usable(text) {
			return text, nil
		}
		if len(text) > len(best) {
			best = text
		}
	}
	if best != "" {
		return best, nil
	}
	return "", lastErr
}
