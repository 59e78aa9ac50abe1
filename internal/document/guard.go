package document

// Default guard limits.
const (
	DefaultSizeThreshold int64 = 100 << 20
	DefaultPageCap             = 70
)

// Range is a half-open span of 0-based page indices [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of pages in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether index falls inside the range.
func (r Range) Contains(index int) bool {
	return index >= r.Start && index < r.End
}

// Guard bounds how much of a large document is processed so OCR cost stays
// predictable.
type Guard struct {
	SizeThreshold int64 // documents at or above this size are capped
	PageCap       int   // max pages visited for capped documents
	ScanPages     int   // optional extra bound for every document (0 = off)
}

// NewGuard returns a Guard, substituting defaults for non-positive limits.
func NewGuard(sizeThreshold int64, pageCap, scanPages int) Guard {
	if sizeThreshold <= 0 {
		sizeThreshold = DefaultSizeThreshold
	}
	if pageCap <= 0 {
		pageCap = DefaultPageCap
	}
	if scanPages < 0 {
		scanPages = 0
	}
	return Guard{SizeThreshold: sizeThreshold, PageCap: pageCap, ScanPages: scanPages}
}

// Capped reports whether the size cap applies to doc.
func (g Guard) Capped(doc *Document) bool {
	return doc.Size >= g.SizeThreshold
}

// EffectivePageRange returns the pages the pipeline is allowed to visit.
func (g Guard) EffectivePageRange(doc *Document) Range {
	end := g.sizeEnd(doc)
	if g.ScanPages > 0 && end > g.ScanPages {
		end = g.ScanPages
	}
	return Range{Start: 0, End: end}
}

// SizeLimited reports whether the size cap dropped pages from doc.
func (g Guard) SizeLimited(doc *Document) bool {
	return g.sizeEnd(doc) < doc.PageCount
}

// ScanLimited reports whether ScanPages dropped pages that the size cap
// would have allowed.
func (g Guard) ScanLimited(doc *Document) bool {
	return g.ScanPages > 0 && g.ScanPages < g.sizeEnd(doc)
}

// sizeEnd is the range end after the size cap alone.
func (g Guard) sizeEnd(doc *Document) int {
	end := doc.PageCount
	if end < 0 {
		end = 0
	}
	if g.Capped(doc) && end > g.PageCap {
		end = g.PageCap
	}
	return end
}
