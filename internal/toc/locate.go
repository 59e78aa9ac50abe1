package toc

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Locator weights. Scores only compare pages within one document.
const (
	KeywordWeight     = 3.0
	DensityWeight     = 5.0
	MonotonicWeight   = 1.0
	PlausibleBonus    = 1.0
	TooFewPenalty     = -1.5
	TooManyPenalty    = -2.0
	MinNumberedLines  = 3
	MaxPlausibleLines = 80

	DefaultMinScore = 3.0
)

// Keywords that mark a TOC heading. Matched case-insensitively against raw
// page text, so the Devanagari forms survive.
var Keywords = []string{
	"table of contents",
	"contents",
	"index",
	"inhalt",
	"inhaltsverzeichnis",
	"sommaire",
	"table des matières",
	"contenido",
	"índice",
	"indice",
	"विषय सूची",
	"अनुक्रमणिका",
}

// Heading lines are short. Longer lines mentioning a keyword are body text.
const maxHeadingRunes = 40

// Signals is the per-page breakdown behind a score.
type Signals struct {
	Keyword       bool    `json:"keyword"`
	Lines         int     `json:"lines"`
	NumberedLines int     `json:"numbered_lines"`
	Density       float64 `json:"density"`
	Monotonic     float64 `json:"monotonic"`
}

// Candidate is a page that may hold the TOC.
type Candidate struct {
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
	Signals Signals `json:"signals"`
}

// Locator scores pages and keeps those at or above MinScore.
type Locator struct {
	MinScore float64
}

// Locate ranks pages with the default threshold.
func Locate(pages []PageText) []Candidate {
	return Locator{MinScore: DefaultMinScore}.Locate(pages)
}

// Locate returns candidates best-first. Equal scores keep the lower page
// index first. An empty result means no page looks like a TOC.
func (l Locator) Locate(pages []PageText) []Candidate {
	threshold := l.MinScore
	if threshold <= 0 {
		threshold = DefaultMinScore
	}

	var out []Candidate
	for _, p := range pages {
		score, sig := Score(p.Text)
		if score < threshold {
			continue
		}
		out = append(out, Candidate{Page: p.Index, Score: score, Signals: sig})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Page, b.Page)
	})
	return out
}

// Score rates how much raw page text looks like a table of contents.
func Score(raw string) (float64, Signals) {
	sig := Signals{Keyword: hasKeyword(raw)}

	entries := Parse(Normalize(raw))
	sig.Lines = len(entries)

	var pages []int
	for _, e := range entries {
		if e.Page != nil {
			pages = append(pages, *e.Page)
		}
	}
	sig.NumberedLines = len(pages)
	if sig.Lines > 0 {
		sig.Density = float64(sig.NumberedLines) / float64(sig.Lines)
	}
	if len(pages) >= MinNumberedLines {
		sig.Monotonic = monotonicRatio(pages)
	}

	var score float64
	if sig.Keyword {
		score += KeywordWeight
	}
	switch {
	case sig.NumberedLines < MinNumberedLines:
		// A folio or a dated heading alone must not read as a dense TOC.
		score += TooFewPenalty
		return score, sig
	case sig.Lines > MaxPlausibleLines:
		score += TooManyPenalty
	default:
		score += PlausibleBonus
	}
	score += sig.Density*DensityWeight + sig.Monotonic*MonotonicWeight
	return score, sig
}

// Best returns the best candidate plus any candidates on directly adjacent
// pages, in page order. TOCs that span several pages come back whole.
func Best(cands []Candidate) []int {
	if len(cands) == 0 {
		return nil
	}
	found := make(map[int]bool, len(cands))
	for _, c := range cands {
		found[c.Page] = true
	}

	first, last := cands[0].Page, cands[0].Page
	for found[first-1] {
		first--
	}
	for found[last+1] {
		last++
	}

	run := make([]int, 0, last-first+1)
	for i := first; i <= last; i++ {
		run = append(run, i)
	}
	return run
}

func hasKeyword(raw string) bool {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" || utf8.RuneCountInString(line) > maxHeadingRunes {
			continue
		}
		line = strings.TrimRightFunc(line, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSpace(r)
		})
		for _, kw := range Keywords {
			if line == kw || strings.HasPrefix(line, kw+" ") || strings.HasPrefix(line, kw+"\t") || strings.HasPrefix(line, kw+":") {
				return true
			}
		}
	}
	return false
}

// monotonicRatio is the fraction of consecutive page numbers that do not
// decrease.
func monotonicRatio(pages []int) float64 {
	if len(pages) < 2 {
		return 0
	}
	ok := 0
	for i := 1; i < len(pages); i++ {
		if pages[i] >= pages[i-1] {
			ok++
		}
	}
	return float64(ok) / float64(len(pages)-1)
}
