package toc

import (
	"strings"
	"unicode"
)

// headingWords make up column headers and TOC titles rather than entries.
var headingWords = map[string]bool{
	"table": true, "of": true, "contents": true, "content": true,
	"index": true, "page": true, "pages": true, "pg": true, "no": true,
	"chapter": true, "chap": true, "chapters": true, "section": true,
	"title": true, "topic": true, "s.no": true, "sr.no": true, "sl.no": true,
	"inhalt": true, "inhaltsverzeichnis": true, "sommaire": true,
	"contenido": true, "indice": true, "índice": true,
}

// DropHeadings removes page-less entries that are only heading words
// ("Contents", "Chapter Page"), only a number (a stray folio) or only
// punctuation. Entries with a page number are always kept. The input slice
// is not modified.
func DropHeadings(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Page == nil && isHeading(e.Title) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func isHeading(title string) bool {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return unicode.IsSpace(r) || r == ':' || r == '/' || r == '|'
	})
	allHeading, allNumeric, anyAlnum := true, true, false
	for _, w := range words {
		w = strings.Trim(w, ".-")
		if w == "" {
			continue
		}
		if !headingWords[w] {
			allHeading = false
		}
		if !numericToken.MatchString(w) {
			allNumeric = false
		}
		if strings.IndexFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			anyAlnum = true
		}
	}
	return allHeading || allNumeric || !anyAlnum
}
