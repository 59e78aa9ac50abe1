// Package toc finds table-of-contents pages and parses them into entries.
//
// Everything here is pure: the package never touches PDFs or external tools,
// so it is exercised with plain strings.
package toc

// Sep is the separator token Normalize writes between a title and its page
// number (and anywhere else a leader or wide gap was collapsed).
const Sep = "\t"

// Entry is one parsed table-of-contents row.
type Entry struct {
	Title      string `json:"title" yaml:"title"`
	Page       *int   `json:"page" yaml:"page"`
	Line       int    `json:"line" yaml:"line"`               // 1-based within the source page
	SourcePage int    `json:"source_page" yaml:"source_page"` // 0-based page index
}

// HasPage reports whether a page number was recovered.
func (e Entry) HasPage() bool {
	return e.Page != nil
}

// Line is one line of cleaned text with its 1-based position.
type Line struct {
	Number int
	Text   string
}

// PageText is the input unit for the locator.
type PageText struct {
	Index int
	Text  string
}

func intPtr(n int) *int {
	return &n
}
