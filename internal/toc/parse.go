package toc

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	numericToken = regexp.MustCompile(`^[+-]?[0-9]+$`)
	// Leader marks left dangling at the end of a title, e.g. "Methods ." or
	// "Results --".
	trailingLeader = regexp.MustCompile(`(?:\s+[.·•∙_\-–—:]+|[.·•∙_\-–—]{2,})$`)
	spaces         = regexp.MustCompile(`\s+`)
)

// Parse turns TOC text into entries, one per non-blank line, in line order.
// Dot leaders, dash runs, tabs and wide gaps all count as separators, so
// text need not pass through Normalize first. A page number is taken from
// (a) a numeric token after the last separator, else (b) a trailing numeric
// word. Page numbers that are not positive integers are dropped but the
// title is kept.
func Parse(cleaned string) []Entry {
	lines := Lines(cleaned)
	entries := make([]Entry, 0, len(lines))
	for _, l := range lines {
		text := collapseLine(l.Text)
		if text == "" {
			text = l.Text
		}
		title, page := splitLine(text)
		entries = append(entries, Entry{Title: title, Page: page, Line: l.Number})
	}
	return entries
}

func splitLine(line string) (string, *int) {
	titlePart, token, ok := afterLastSep(line)
	if !ok {
		titlePart, token, ok = lastWord(line)
	}
	if !ok {
		return titleOf(line, line), nil
	}
	return titleOf(titlePart, line), pageNumber(token)
}

// titleOf cleans part. When trimming leaves nothing, the untrimmed part is
// used, and failing that the whole line, so a title is never empty.
func titleOf(part, line string) string {
	for _, s := range []string{cleanTitle(part), collapse(part), cleanTitle(line)} {
		if s != "" {
			return s
		}
	}
	return collapse(line)
}

// afterLastSep implements rule (a).
func afterLastSep(line string) (title, token string, ok bool) {
	i := strings.LastIndex(line, Sep)
	if i < 0 {
		return "", "", false
	}
	tail := strings.TrimSpace(line[i+len(Sep):])
	if !numericToken.MatchString(tail) {
		return "", "", false
	}
	return line[:i], tail, true
}

// lastWord implements rule (b). A lone number is not split off.
func lastWord(line string) (title, token string, ok bool) {
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	i := strings.LastIndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return "", "", false
	}
	tail := line[i+1:]
	if !numericToken.MatchString(tail) {
		return "", "", false
	}
	return line[:i], tail, true
}

func pageNumber(token string) *int {
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 {
		return nil
	}
	return intPtr(n)
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func cleanTitle(s string) string {
	return strings.TrimSpace(trailingLeader.ReplaceAllString(collapse(s), ""))
}
