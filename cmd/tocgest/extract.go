package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/tocgest/internal/document"
)

var (
	extractOutput  string
	extractTimeout time.Duration
	extractWorkers int
	extractNoOCR   bool
	extractEntries bool
	extractNoCache bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Extract the table of contents from a PDF",
	Long: `Extract the table of contents from a local PDF and print the result.

A document without a table of contents is not an error: the result has
status no_toc_detected and an empty entry list.

Examples:
  tocgest extract book.pdf
  tocgest extract scan.pdf -o json --timeout 5m
  tocgest extract book.pdf --entries-only --no-ocr`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("timeout") {
			cfg.ExtractTimeout = extractTimeout
		}
		if extractWorkers > 0 {
			cfg.PageWorkers = extractWorkers
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// stdout carries the result, so logs go to stderr.
		log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, "text")
		if err != nil {
			return err
		}

		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		doc, err := document.Open(data, filepath.Base(path))
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer doc.Close()

		if extractNoCache {
			cfg.CachePath = ""
		}
		cache, err := openCache(cfg, log)
		if err != nil {
			return err
		}
		if cache != nil {
			defer cache.Close()
		}

		p, _ := buildPipeline(cfg, !extractNoOCR, cache, log)
		res, err := p.Run(cmd.Context(), doc)
		if err != nil {
			return err
		}
		log.Info("done",
			"status", res.Status,
			"entries", len(res.Entries),
			"toc_pages", res.TOCPages,
			"elapsed", res.Elapsed.Round(time.Millisecond),
		)

		var out any = res
		if extractEntries {
			out = res.Entries
		}
		return writeOutput(cmd.OutOrStdout(), extractOutput, out)
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "yaml", "output format: yaml or json")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 0, "extraction deadline, partial result on expiry (0 = none)")
	extractCmd.Flags().IntVar(&extractWorkers, "workers", 0, "pages extracted in parallel (default from config)")
	extractCmd.Flags().BoolVar(&extractNoOCR, "no-ocr", false, "use the PDF text layer only")
	extractCmd.Flags().BoolVar(&extractEntries, "entries-only", false, "print only the entry list")
	extractCmd.Flags().BoolVar(&extractNoCache, "no-cache", false, "ignore cache_path for this run")
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}
