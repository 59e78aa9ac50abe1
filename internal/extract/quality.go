package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default quality thresholds for native text.
const (
	DefaultMinChars       = 25
	DefaultMinPrintable   = 0.85
	DefaultMaxReplacement = 0.05
)

// Quality decides whether a page's text layer is good enough to skip OCR.
type Quality struct {
	MinChars       int
	MinPrintable   float64
	MaxReplacement float64
}

// DefaultQuality returns thresholds tuned for TOC pages, which are short but
// rarely under a couple of dozen characters.
func DefaultQuality() Quality {
	return Quality{
		MinChars:       DefaultMinChars,
		MinPrintable:   DefaultMinPrintable,
		MaxReplacement: DefaultMaxReplacement,
	}
}

// Usable reports whether text can be used as-is.
func (q Quality) Usable(text string) bool {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < q.MinChars {
		return false
	}
	if PrintableRatio(text) < q.MinPrintable {
		return false
	}
	if ReplacementRatio(text) > q.MaxReplacement {
		return false
	}
	return true
}

// NeedsOCR is the inverse of Usable.
func (q Quality) NeedsOCR(text string) bool {
	return !q.Usable(text)
}

// PrintableRatio returns the fraction of runes that are graphic or ordinary
// whitespace.
func PrintableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsGraphic(r) || r == '\n' || r == '\t' || r == '\r' {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}

// ReplacementRatio returns the fraction of runes that are U+FFFD.
func ReplacementRatio(text string) float64 {
	total, bad := 0, 0
	for _, r := range text {
		total++
		if r == utf8.RuneError {
			bad++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}
