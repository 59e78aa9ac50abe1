package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/tocgest/internal/document"
	"github.com/dgallion1/tocgest/internal/extract"
	"github.com/dgallion1/tocgest/internal/pdftext"
	"github.com/dgallion1/tocgest/internal/pdftest"
	"github.com/dgallion1/tocgest/internal/toc"
)

const (
	prose = "The committee met on 12 March to discuss the budget. Members raised concerns\n" +
		"about spending in 2023 and asked for a revised plan.\n" +
		"The plan was approved after a short debate."
	leaderTOC = "Introduction....1\nMethods....5\nConclusion....42"
)

// fakeExtractor serves canned page text and records every call.
type fakeExtractor struct {
	texts  map[int]string
	failed map[int]bool
	delay  func(i int) time.Duration

	mu    sync.Mutex
	calls []int
}

func (f *fakeExtractor) Extract(ctx context.Context, _ *document.Document, i int) document.Page {
	f.mu.Lock()
	f.calls = append(f.calls, i)
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(i)):
		case <-ctx.Done():
			return document.Page{Index: i, Method: document.MethodFailed, Err: ctx.Err().Error()}
		}
	}
	if f.failed[i] {
		return document.Page{Index: i, Method: document.MethodFailed, Err: "ocr: tesseract exited 1"}
	}
	text, ok := f.texts[i]
	if !ok {
		text = prose
	}
	return document.Page{Index: i, Text: text, Method: document.MethodNative}
}

func (f *fakeExtractor) called() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.calls)
	slices.Sort(out)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func smallDoc(pages int) *document.Document {
	return &document.Document{Name: "test", Size: 1 << 20, PageCount: pages}
}

func TestRun_TextPDF(t *testing.T) {
	ext := &fakeExtractor{texts: map[int]string{1: leaderTOC}}
	p := New(ext, Options{}, testLogger())

	res, err := p.Run(context.Background(), smallDoc(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ResultTOCFound {
		t.Fatalf("expected %q, got %q", ResultTOCFound, res.Status)
	}

	want := []struct {
		title string
		page  int
	}{{"Introduction", 1}, {"Methods", 5}, {"Conclusion", 42}}
	if len(res.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(res.Entries), res.Entries)
	}
	for i, w := range want {
		e := res.Entries[i]
		if e.Title != w.title {
			t.Errorf("entry %d: expected title %q, got %q", i, w.title, e.Title)
		}
		if e.Page == nil || *e.Page != w.page {
			t.Errorf("entry %d: expected page %d, got %v", i, w.page, e.Page)
		}
		if e.SourcePage != 1 {
			t.Errorf("entry %d: expected source page 1, got %d", i, e.SourcePage)
		}
		if e.Line != i+1 {
			t.Errorf("entry %d: expected line %d, got %d", i, i+1, e.Line)
		}
	}
	if !slices.Equal(res.TOCPages, []int{1}) {
		t.Errorf("expected toc pages [1], got %v", res.TOCPages)
	}
	if len(res.Pages) != 5 {
		t.Errorf("expected 5 page reports, got %d", len(res.Pages))
	}
	if res.Capped || res.TimedOut {
		t.Errorf("expected neither capped nor timed out, got %+v", res)
	}
}

func TestRun_TextPDFWithNativeExtractor(t *testing.T) {
	data := pdftest.Build(
		[]string{"A Study of Sample Documents", "Prepared for the records office"},
		[]string{"Contents", "Introduction....1", "Methods....5", "Conclusion....42"},
		[]string{"The study began with a review of earlier work and its", "limitations in practice."},
		[]string{"Samples were collected over several months and sorted", "by source and condition."},
		[]string{"The findings support the earlier conclusions with some", "reservations noted above."},
	)
	doc, err := document.Open(data, "study.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if doc.PageCount != 5 {
		t.Fatalf("expected 5 pages, got %d", doc.PageCount)
	}

	ext := extract.NewExtractor(pdftext.Native{}, nil, extract.DefaultQuality(), nil, testLogger())
	res, err := New(ext, Options{}, testLogger()).Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != ResultTOCFound {
		t.Fatalf("expected toc found, got %q", res.Status)
	}
	if !slices.Equal(res.TOCPages, []int{1}) {
		t.Errorf("expected toc on page index 1, got %v", res.TOCPages)
	}
	want := []struct {
		title string
		page  int
	}{{"Introduction", 1}, {"Methods", 5}, {"Conclusion", 42}}
	if len(res.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), res.Entries)
	}
	for i, w := range want {
		e := res.Entries[i]
		if e.Title != w.title || e.Page == nil || *e.Page != w.page {
			t.Errorf("entry %d: got %q/%v, want %q/%d", i, e.Title, e.Page, w.title, w.page)
		}
	}
	for _, pr := range res.Pages {
		if pr.Method != document.MethodNative {
			t.Errorf("page %d: expected native text, got %q (%s)", pr.Index, pr.Method, pr.Err)
		}
	}
}

func TestRun_NoTOC(t *testing.T) {
	ext := &fakeExtractor{}
	p := New(ext, Options{}, testLogger())

	res, err := p.Run(context.Background(), smallDoc(6))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Status != ResultNoTOC {
		t.Errorf("expected %q, got %q", ResultNoTOC, res.Status)
	}
	if res.Entries == nil || len(res.Entries) != 0 {
		t.Errorf("expected empty non-nil entries, got %#v", res.Entries)
	}
	if len(res.Candidates) != 0 || len(res.TOCPages) != 0 {
		t.Errorf("expected no candidates, got %+v", res.Candidates)
	}
}

func TestRun_MissingPageNumber(t *testing.T) {
	ext := &fakeExtractor{texts: map[int]string{
		0: "Contents\nChapter One\nIntro....1\nMethods....5\nEnd....9",
	}}
	res, err := New(ext, Options{}, testLogger()).Run(context.Background(), smallDoc(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %+v", res.Entries)
	}
	first := res.Entries[0]
	if first.Title != "Chapter One" || first.Page != nil {
		t.Errorf("expected (Chapter One, absent), got (%q, %v)", first.Title, first.Page)
	}
}

func TestRun_LargeDocumentCap(t *testing.T) {
	for _, workers := range []int{1, 4} {
		ext := &fakeExtractor{}
		p := New(ext, Options{PageWorkers: workers}, testLogger())
		doc := &document.Document{Name: "big", Size: 150 << 20, PageCount: 400}

		res, err := p.Run(context.Background(), doc)
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}

		calls := ext.called()
		if len(calls) != 70 {
			t.Fatalf("workers=%d: expected 70 extractor calls, got %d", workers, len(calls))
		}
		if calls[len(calls)-1] != 69 {
			t.Errorf("workers=%d: expected highest page index 69, got %d", workers, calls[len(calls)-1])
		}
		if !res.Capped {
			t.Errorf("workers=%d: expected capped result", workers)
		}
		if res.Range != (document.Range{Start: 0, End: 70}) {
			t.Errorf("workers=%d: unexpected range %+v", workers, res.Range)
		}
		if res.PageCount != 400 {
			t.Errorf("workers=%d: expected page count 400, got %d", workers, res.PageCount)
		}
	}
}

func TestRun_SmallDocumentVisitsEveryPage(t *testing.T) {
	ext := &fakeExtractor{}
	res, err := New(ext, Options{}, testLogger()).Run(context.Background(), smallDoc(120))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(ext.called()); got != 120 {
		t.Errorf("expected 120 calls, got %d", got)
	}
	if res.Capped {
		t.Error("expected small document not to be capped")
	}
}

func TestRun_ScanPagesIsNotSizeCap(t *testing.T) {
	ext := &fakeExtractor{}
	p := New(ext, Options{Guard: document.NewGuard(0, 0, 10)}, testLogger())

	res, err := p.Run(context.Background(), smallDoc(40))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(ext.called()); got != 10 {
		t.Errorf("expected 10 calls, got %d", got)
	}
	if res.Capped {
		t.Error("expected small document not to be size capped")
	}
	if !res.ScanLimited {
		t.Error("expected scan_pages limit to be reported")
	}
}

func TestRun_ParallelOrderIsDeterministic(t *testing.T) {
	ext := &fakeExtractor{
		texts: map[int]string{
			2: "Contents\nIntroduction....1\nMethods....5\nResults....12",
			3: "Discussion....20\nConclusion....31\nReferences....40",
		},
		// Later pages finish first.
		delay: func(i int) time.Duration { return time.Duration(12-i) * time.Millisecond },
	}
	p := New(ext, Options{PageWorkers: 6}, testLogger())

	res, err := p.Run(context.Background(), smallDoc(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(res.TOCPages, []int{2, 3}) {
		t.Fatalf("expected toc pages [2 3], got %v", res.TOCPages)
	}

	var titles []string
	for _, e := range res.Entries {
		titles = append(titles, e.Title)
	}
	want := []string{"Introduction", "Methods", "Results", "Discussion", "Conclusion", "References"}
	if !slices.Equal(titles, want) {
		t.Errorf("expected %v, got %v", want, titles)
	}
	for i, pr := range res.Pages {
		if pr.Index != i {
			t.Fatalf("page reports out of order: %+v", res.Pages)
		}
	}
}

func TestRun_FailedPagesAreNotFatal(t *testing.T) {
	ext := &fakeExtractor{
		texts:  map[int]string{0: leaderTOC},
		failed: map[int]bool{1: true, 2: true},
	}
	res, err := New(ext, Options{}, testLogger()).Run(context.Background(), smallDoc(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ResultTOCFound || len(res.Entries) != 3 {
		t.Fatalf("expected the toc on page 0 despite failures, got %+v", res)
	}
	failed := 0
	for _, pr := range res.Pages {
		if pr.Method == document.MethodFailed {
			failed++
			if pr.Err == "" {
				t.Errorf("expected diagnostic on failed page %d", pr.Index)
			}
		}
	}
	if failed != 2 {
		t.Errorf("expected 2 failed pages, got %d", failed)
	}
}

func TestRun_TimeoutReturnsPartialResult(t *testing.T) {
	ext := &fakeExtractor{
		texts: map[int]string{0: leaderTOC},
		delay: func(i int) time.Duration {
			if i == 0 {
				return 0
			}
			return 200 * time.Millisecond
		},
	}
	p := New(ext, Options{Timeout: 50 * time.Millisecond}, testLogger())

	res, err := p.Run(context.Background(), smallDoc(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Error("expected timed_out")
	}
	if got := len(ext.called()); got >= 20 {
		t.Errorf("expected extraction to stop early, got %d calls", got)
	}
	if res.Status != ResultTOCFound || len(res.Entries) != 3 {
		t.Errorf("expected entries from pages extracted before the deadline, got %+v", res.Entries)
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	ext := &fakeExtractor{}
	var mu sync.Mutex
	seen := map[int]bool{}

	_, err := New(ext, Options{PageWorkers: 3}, testLogger()).RunWithProgress(context.Background(), smallDoc(9), func(p document.Page) {
		mu.Lock()
		seen[p.Index] = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 9 {
		t.Errorf("expected 9 progress callbacks, got %d", len(seen))
	}
}

func TestRun_DocumentErrors(t *testing.T) {
	p := New(&fakeExtractor{}, Options{}, testLogger())

	if _, err := p.Run(context.Background(), nil); !errors.Is(err, document.ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
	if _, err := p.Run(context.Background(), smallDoc(0)); !errors.Is(err, document.ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestRun_CustomLocatorThreshold(t *testing.T) {
	ext := &fakeExtractor{texts: map[int]string{0: leaderTOC}}
	p := New(ext, Options{Locator: toc.Locator{MinScore: 50}}, testLogger())

	res, err := p.Run(context.Background(), smallDoc(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ResultNoTOC {
		t.Errorf("expected no toc with an unreachable threshold, got %q", res.Status)
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *memCache) Put(_ context.Context, key, _ string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	m.puts++
	return nil
}

func TestRun_CachedResult(t *testing.T) {
	ext := &fakeExtractor{texts: map[int]string{0: leaderTOC}}
	cache := &memCache{}
	p := New(ext, Options{Cache: cache}, testLogger())
	doc := document.New([]byte("%PDF-1.4 cached"), "cached", 3)

	first, err := p.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Cached {
		t.Error("expected first run to miss the cache")
	}
	if cache.puts != 1 {
		t.Fatalf("expected one cache write, got %d", cache.puts)
	}

	second, err := p.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Cached {
		t.Error("expected second run to hit the cache")
	}
	if got := len(ext.called()); got != 3 {
		t.Errorf("expected extractor to run only for the first call, got %d calls", got)
	}
	if len(second.Entries) != 3 || second.Entries[1].Title != "Methods" {
		t.Errorf("unexpected cached entries %+v", second.Entries)
	}

	// A different threshold must not reuse the cached result.
	other := New(ext, Options{Cache: cache, Locator: toc.Locator{MinScore: 50}}, testLogger())
	res, err := other.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cached || res.Status != ResultNoTOC {
		t.Errorf("expected a fresh no-toc result, got cached=%v status=%q", res.Cached, res.Status)
	}
}

func TestRun_FailedPagesNotCached(t *testing.T) {
	cache := &memCache{}
	doc := document.New([]byte("%PDF-1.4 scan"), "scan", 3)

	broken := &fakeExtractor{failed: map[int]bool{0: true, 1: true, 2: true}}
	res, err := New(broken, Options{Cache: cache}, testLogger()).Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ResultNoTOC {
		t.Fatalf("expected no toc from failed pages, got %q", res.Status)
	}
	if cache.puts != 0 {
		t.Fatalf("expected result with failed pages not to be cached, got %d writes", cache.puts)
	}

	working := &fakeExtractor{texts: map[int]string{0: leaderTOC}}
	res, err = New(working, Options{Cache: cache}, testLogger()).Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cached || res.Status != ResultTOCFound || len(res.Entries) != 3 {
		t.Errorf("expected a fresh toc result, got cached=%v status=%q entries=%d", res.Cached, res.Status, len(res.Entries))
	}
}

func TestRun_FingerprintSeparatesCacheEntries(t *testing.T) {
	cache := &memCache{}
	doc := document.New([]byte("%PDF-1.4 fingerprint"), "fp", 3)

	// Without OCR the extractor only sees prose.
	textOnly := New(&fakeExtractor{}, Options{Cache: cache, Fingerprint: "ocr=false"}, testLogger())
	res, err := textOnly.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ResultNoTOC || cache.puts != 1 {
		t.Fatalf("expected cached no-toc result, got status=%q puts=%d", res.Status, cache.puts)
	}

	withOCR := New(&fakeExtractor{texts: map[int]string{1: leaderTOC}}, Options{Cache: cache, Fingerprint: "ocr=true"}, testLogger())
	res, err = withOCR.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cached || res.Status != ResultTOCFound {
		t.Errorf("expected fresh toc result under a new fingerprint, got cached=%v status=%q", res.Cached, res.Status)
	}

	res, err = textOnly.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cached || res.Status != ResultNoTOC {
		t.Errorf("expected the original fingerprint to hit its own entry, got cached=%v status=%q", res.Cached, res.Status)
	}
}

func TestRun_TimedOutResultNotCached(t *testing.T) {
	ext := &fakeExtractor{delay: func(int) time.Duration { return 200 * time.Millisecond }}
	cache := &memCache{}
	p := New(ext, Options{Cache: cache, Timeout: 20 * time.Millisecond}, testLogger())

	res, err := p.Run(context.Background(), smallDoc(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected timed out result")
	}
	if cache.puts != 0 {
		t.Errorf("expected partial result not to be cached, got %d writes", cache.puts)
	}
}
