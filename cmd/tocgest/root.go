package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "tocgest",
	Short: "Extract tables of contents from PDF documents",
	Long: `tocgest finds the table of contents in a PDF and returns its entries as
(title, page) pairs.

Text comes from the PDF's own text layer when it is usable and from OCR
(pdftoppm + tesseract) when it is not. Documents of 100MB or more are only
scanned up to page 70.`,
	Version:      version,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./tocgest.yaml or ~/.tocgest/tocgest.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(serveCmd)
}
