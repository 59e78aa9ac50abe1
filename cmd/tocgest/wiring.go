package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/tocgest/internal/config"
	"github.com/dgallion1/tocgest/internal/document"
	"github.com/dgallion1/tocgest/internal/extract"
	"github.com/dgallion1/tocgest/internal/ocr"
	"github.com/dgallion1/tocgest/internal/pdftext"
	"github.com/dgallion1/tocgest/internal/pipeline"
	"github.com/dgallion1/tocgest/internal/resultstore"
	"github.com/dgallion1/tocgest/internal/toc"
	"github.com/dgallion1/tocgest/internal/toolexec"
)

// statsWindow is how long OCR latency samples are kept.
const statsWindow = time.Hour

// loadConfig reads the config file and environment, then applies the
// --log-level override.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// openCache opens the result store named by cfg.CachePath. It returns nil
// when caching is off.
func openCache(cfg config.Config, log *slog.Logger) (*resultstore.Store, error) {
	if cfg.CachePath == "" {
		return nil, nil
	}
	store, err := resultstore.Open(cfg.CachePath, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("open result cache: %w", err)
	}
	log.Debug("result cache enabled", "path", cfg.CachePath, "ttl", cfg.CacheTTL)
	return store, nil
}

// buildPipeline wires text sources, OCR and the locator from cfg. With
// useOCR false, pages without a usable text layer are reported as failed.
// cache may be nil.
func buildPipeline(cfg config.Config, useOCR bool, cache *resultstore.Store, log *slog.Logger) (*pipeline.Pipeline, *extract.LatencyStats) {
	runner := toolexec.ExecRunner{}

	sources := []pdftext.Source{pdftext.Native{}}
	usePdftotext := false
	if cfg.PDFFallbackPdftotext {
		if err := toolexec.CheckAvailable(cfg.PdftotextPath); err != nil {
			log.Warn("pdftotext fallback disabled", "error", err)
		} else {
			sources = append(sources, pdftext.NewPdftotext(cfg.PdftotextPath, runner))
			usePdftotext = true
		}
	}

	quality := extract.DefaultQuality()
	quality.MinChars = cfg.MinNativeChars
	text := pdftext.Chain{Sources: sources, Usable: quality.Usable}

	var stats *extract.LatencyStats
	var ocrSource pdftext.Source
	if useOCR {
		stats = extract.NewLatencyStats(statsWindow)
		ocrSource = ocr.New(ocr.Options{
			PdftoppmPath:  cfg.PdftoppmPath,
			TesseractPath: cfg.TesseractPath,
			Language:      cfg.OCRLanguage,
			DPI:           cfg.OCRDPI,
			PSM:           cfg.OCRPSM,
			Attempts:      uint(cfg.OCRAttempts),
			Runner:        runner,
		})
		for _, tool := range []string{cfg.PdftoppmPath, cfg.TesseractPath} {
			if err := toolexec.CheckAvailable(tool); err != nil {
				log.Warn("ocr tool missing, scanned pages will fail", "error", err)
			}
		}
	}

	var rc pipeline.ResultCache
	if cache != nil {
		rc = cache
	}

	ext := extract.NewExtractor(text, ocrSource, quality, stats, log)
	p := pipeline.New(ext, pipeline.Options{
		Guard:       document.NewGuard(cfg.SizeThreshold, cfg.PageCap, cfg.ScanPages),
		Locator:     toc.Locator{MinScore: cfg.MinScore},
		PageWorkers: cfg.PageWorkers,
		Timeout:     cfg.ExtractTimeout,
		Cache:       rc,
		Fingerprint: extractorFingerprint(cfg, useOCR, usePdftotext),
	}, log)
	return p, stats
}

// extractorFingerprint names the settings that change what text a page
// yields, so cached results from other settings are not reused.
func extractorFingerprint(cfg config.Config, useOCR, usePdftotext bool) string {
	fp := fmt.Sprintf("min=%d,pdftotext=%t,ocr=%t", cfg.MinNativeChars, usePdftotext, useOCR)
	if useOCR {
		fp += fmt.Sprintf(",lang=%s,dpi=%d,psm=%d", cfg.OCRLanguage, cfg.OCRDPI, cfg.OCRPSM)
	}
	return fp
}
