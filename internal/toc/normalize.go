package toc

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// Two or more leader marks, optionally spaced: "....", ". . .", "···", "___".
	leaderRun = regexp.MustCompile(`[.·•∙_](?: *[.·•∙_])+`)
	// Three or more dashes, optionally spaced.
	dashRun = regexp.MustCompile(`[-‐‒–—―](?: *[-‐‒–—―]){2,}`)
	// Two or more spaces.
	wideGap = regexp.MustCompile(` {2,}`)
	// Any mix of spaces and separators that contains at least one separator.
	sepRun = regexp.MustCompile(`[ \t]*\t[ \t]*`)
)

// Normalize cleans raw page text for Parse. It strips control and format
// characters, removes Devanagari (after mapping its digits to ASCII),
// applies NFKC, and collapses dot leaders, dash leaders and wide gaps into
// Sep. Line count is preserved. Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	s := stripNoise(raw)

	t := transform.Chain(
		norm.NFKC,
		runes.Map(devanagariDigit),
		runes.Remove(runes.Predicate(isDevanagari)),
		norm.NFKC,
	)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = collapseLine(line)
	}
	return strings.Join(lines, "\n")
}

// stripNoise unifies line breaks, turns exotic whitespace into plain spaces
// and drops control, format, private-use and replacement runes.
func stripNoise(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			sb.WriteRune(r)
		case r == '\r' || r == '\f' || r == '\v' || r == '\u2028' || r == '\u2029' || r == '\u0085':
			sb.WriteByte('\n')
		case r == unicode.ReplacementChar:
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), unicode.Is(unicode.Co, r):
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func devanagariDigit(r rune) rune {
	if r >= '०' && r <= '९' {
		return '0' + (r - '०')
	}
	return r
}

// isDevanagari covers the script plus the blocks whose shared marks (danda,
// Vedic tones) only ever appear alongside it.
func isDevanagari(r rune) bool {
	switch {
	case r >= 0x0900 && r <= 0x097F:
		return true
	case r >= 0xA8E0 && r <= 0xA8FF:
		return true
	case r >= 0x1CD0 && r <= 0x1CFF:
		return true
	}
	return unicode.Is(unicode.Devanagari, r)
}

func collapseLine(line string) string {
	line = leaderRun.ReplaceAllString(line, Sep)
	line = dashRun.ReplaceAllString(line, Sep)
	line = wideGap.ReplaceAllString(line, Sep)
	line = sepRun.ReplaceAllString(line, Sep)
	return strings.Trim(line, " \t")
}

// Lines splits cleaned text into numbered lines, skipping blank ones.
func Lines(cleaned string) []Line {
	var out []Line
	for i, text := range strings.Split(cleaned, "\n") {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, Line{Number: i + 1, Text: text})
	}
	return out
}
