package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/tocgest/internal/document"
	"github.com/dgallion1/tocgest/internal/toc"
)

// PageExtractor returns the text of one page. Implementations report failure
// through Page.Method rather than an error.
type PageExtractor interface {
	Extract(ctx context.Context, doc *document.Document, index int) document.Page
}

// ResultCache stores encoded results between runs. Any Get error is treated
// as a miss; the pipeline never fails because of the cache.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key, document string, value []byte) error
}

// ResultStatus tells a caller whether a TOC was found.
type ResultStatus string

const (
	ResultTOCFound ResultStatus = "toc_found"
	ResultNoTOC    ResultStatus = "no_toc_detected"
)

// PageReport summarizes the extraction of one page.
type PageReport struct {
	Index      int             `json:"index" yaml:"index"`
	Method     document.Method `json:"method" yaml:"method"`
	Chars      int             `json:"chars" yaml:"chars"`
	Err        string          `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs int64           `json:"duration_ms" yaml:"duration_ms"`
}

// Result is the outcome of one pipeline run. Entries is never nil.
type Result struct {
	Document    string          `json:"document" yaml:"document"`
	SHA256      string          `json:"sha256" yaml:"sha256"`
	Status      ResultStatus    `json:"status" yaml:"status"`
	Entries     []toc.Entry     `json:"entries" yaml:"entries"`
	TOCPages    []int           `json:"toc_pages" yaml:"toc_pages"`
	Candidates  []toc.Candidate `json:"candidates" yaml:"candidates"`
	Pages       []PageReport    `json:"pages" yaml:"pages"`
	PageCount   int             `json:"page_count" yaml:"page_count"`
	Range       document.Range  `json:"range" yaml:"range"`
	Capped      bool            `json:"capped" yaml:"capped"`             // size guard dropped pages
	ScanLimited bool            `json:"scan_limited" yaml:"scan_limited"` // scan_pages dropped pages
	TimedOut    bool            `json:"timed_out" yaml:"timed_out"`
	Cached      bool            `json:"cached" yaml:"cached"`
	Elapsed     time.Duration   `json:"-" yaml:"-"`
}

// Options configure a Pipeline.
type Options struct {
	Guard       document.Guard
	Locator     toc.Locator
	PageWorkers int
	Timeout     time.Duration // 0 = no deadline
	Cache       ResultCache   // nil disables caching

	// Fingerprint identifies the extractor settings (OCR on/off, dpi,
	// language, quality gate). It is part of the cache key.
	Fingerprint string
}

// Pipeline runs guard, extraction, location and parsing for one document at
// a time. It holds no per-document state and is safe for concurrent use.
type Pipeline struct {
	extractor   PageExtractor
	guard       document.Guard
	locator     toc.Locator
	workers     int
	timeout     time.Duration
	cache       ResultCache
	fingerprint string
	log         *slog.Logger
}

func New(extractor PageExtractor, opts Options, log *slog.Logger) *Pipeline {
	if opts.PageWorkers <= 0 {
		opts.PageWorkers = 1
	}
	if opts.Guard == (document.Guard{}) {
		opts.Guard = document.NewGuard(0, 0, 0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		extractor:   extractor,
		guard:       opts.Guard,
		locator:     opts.Locator,
		workers:     opts.PageWorkers,
		timeout:     opts.Timeout,
		cache:       opts.Cache,
		fingerprint: opts.Fingerprint,
		log:         log,
	}
}

// Range returns the pages Run will visit for doc.
func (p *Pipeline) Range(doc *document.Document) document.Range {
	return p.guard.EffectivePageRange(doc)
}

// Run extracts the TOC from doc. Only document-level problems are returned
// as errors; page failures and a missing TOC are part of the Result.
func (p *Pipeline) Run(ctx context.Context, doc *document.Document) (*Result, error) {
	return p.RunWithProgress(ctx, doc, nil)
}

// RunWithProgress is Run with a callback invoked after each page. The
// callback may be called from several goroutines at once.
func (p *Pipeline) RunWithProgress(ctx context.Context, doc *document.Document, onPage func(document.Page)) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", document.ErrInvalidDocument)
	}
	if doc.PageCount <= 0 {
		return nil, document.ErrEmptyDocument
	}

	start := time.Now()
	log := p.log.With("doc", doc.Name, "pages", doc.PageCount, "bytes", doc.Size)

	sum := ContentHashHex(doc.Bytes())
	key := p.cacheKey(sum)
	if cached := p.cached(ctx, log, key); cached != nil {
		cached.Document = doc.Name
		return cached, nil
	}

	r := p.guard.EffectivePageRange(doc)
	res := &Result{
		Document:    doc.Name,
		SHA256:      sum,
		Status:      ResultNoTOC,
		Entries:     []toc.Entry{},
		TOCPages:    []int{},
		Candidates:  []toc.Candidate{},
		PageCount:   doc.PageCount,
		Range:       r,
		Capped:      p.guard.SizeLimited(doc),
		ScanLimited: p.guard.ScanLimited(doc),
	}
	if res.Capped {
		log.Info("large document, page range capped", "range_end", r.End)
	}
	if res.ScanLimited {
		log.Debug("page range limited by scan_pages", "range_end", r.End)
	}

	extractCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	pages, done := p.extractPages(extractCtx, doc, r, onPage)
	if extractCtx.Err() != nil {
		res.TimedOut = true
		log.Warn("extraction stopped early", "error", extractCtx.Err(), "extracted", countTrue(done), "wanted", r.Len())
	}

	located := make([]toc.PageText, 0, len(pages))
	for i, pg := range pages {
		if !done[i] {
			continue
		}
		res.Pages = append(res.Pages, PageReport{
			Index:      pg.Index,
			Method:     pg.Method,
			Chars:      len(pg.Text),
			Err:        pg.Err,
			DurationMs: pg.Duration.Milliseconds(),
		})
		if pg.Text != "" {
			located = append(located, toc.PageText{Index: pg.Index, Text: pg.Text})
		}
	}

	if res.Pages == nil {
		res.Pages = []PageReport{}
	}

	res.Candidates = append(res.Candidates, p.locator.Locate(located)...)
	if len(res.Candidates) == 0 {
		res.Elapsed = time.Since(start)
		log.Info("no toc detected", "scanned", len(res.Pages), "elapsed", res.Elapsed)
		p.store(ctx, log, key, res)
		return res, nil
	}

	res.TOCPages = toc.Best(res.Candidates)
	text := make(map[int]string, len(located))
	for _, pt := range located {
		text[pt.Index] = pt.Text
	}

	var entries []toc.Entry
	for _, idx := range res.TOCPages {
		parsed := toc.Parse(toc.Normalize(text[idx]))
		for i := range parsed {
			parsed[i].SourcePage = idx
		}
		entries = append(entries, parsed...)
	}
	res.Entries = toc.DropHeadings(entries)
	res.Status = ResultTOCFound
	res.Elapsed = time.Since(start)

	log.Info("toc extracted",
		"toc_pages", res.TOCPages,
		"entries", len(res.Entries),
		"score", res.Candidates[0].Score,
		"elapsed", res.Elapsed,
	)
	p.store(ctx, log, key, res)
	return res, nil
}

// cacheKey covers the guard and locator settings plus the extractor
// fingerprint, so a change to any of them misses the cache.
func (p *Pipeline) cacheKey(sum string) string {
	return fmt.Sprintf("%s:%d:%d:%d:%g:%s", sum,
		p.guard.SizeThreshold, p.guard.PageCap, p.guard.ScanPages, p.locator.MinScore, p.fingerprint)
}

func (p *Pipeline) cached(ctx context.Context, log *slog.Logger, key string) *Result {
	if p.cache == nil {
		return nil
	}
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		log.Warn("discarding unreadable cached result", "error", err)
		return nil
	}
	res.Cached = true
	log.Info("cached result", "status", res.Status, "entries", len(res.Entries))
	return &res
}

// store saves complete results. Timed out results and results with failed
// pages are not cached: a later run may read those pages.
func (p *Pipeline) store(ctx context.Context, log *slog.Logger, key string, res *Result) {
	if p.cache == nil || res.TimedOut || ctx.Err() != nil {
		return
	}
	if n := failedPages(res); n > 0 {
		log.Debug("not caching result with failed pages", "failed", n)
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		log.Warn("encode result for cache", "error", err)
		return
	}
	if err := p.cache.Put(ctx, key, res.Document, data); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("cache result", "error", err)
	}
}

// extractPages runs the extractor over r with at most p.workers pages in
// flight. Results are stored by position so ordering never depends on
// completion order. done[i] is false for pages skipped after ctx ended.
func (p *Pipeline) extractPages(ctx context.Context, doc *document.Document, r document.Range, onPage func(document.Page)) ([]document.Page, []bool) {
	pages := make([]document.Page, r.Len())
	done := make([]bool, r.Len())

	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

loop:
	for i := r.Start; i < r.End; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		if ctx.Err() != nil {
			<-sem
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			pg := p.extractor.Extract(ctx, doc, i)
			pg.Index = i
			pages[i-r.Start] = pg
			done[i-r.Start] = true
			if onPage != nil {
				onPage(pg)
			}
		}(i)
	}
	wg.Wait()
	return pages, done
}

func failedPages(res *Result) int {
	n := 0
	for _, pr := range res.Pages {
		if pr.Method == document.MethodFailed {
			n++
		}
	}
	return n
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
