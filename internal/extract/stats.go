package extract

import (
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/tocgest/internal/document"
)

type sample struct {
	at time.Time
	ms int64
}

// StatsSnapshot aggregates recent OCR latencies and per-method page counts.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`

	Pages map[document.Method]int `json:"pages"`
}

// LatencyStats tracks OCR call latencies within a rolling window. Page
// counts are cumulative for the life of the process.
type LatencyStats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
	pages   map[document.Method]int
}

func NewLatencyStats(maxAge time.Duration) *LatencyStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LatencyStats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
		pages:   make(map[document.Method]int),
	}
}

// RecordOCR adds one OCR latency sample.
func (s *LatencyStats) RecordOCR(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, ms: ms})
}

// RecordPage counts one finished page by extraction method.
func (s *LatencyStats) RecordPage(m document.Method) {
	s.mu.Lock()
	s.pages[m]++
	s.mu.Unlock()
}

func (s *LatencyStats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{Pages: make(map[document.Method]int, len(s.pages))}
	for m, n := range s.pages {
		snap.Pages[m] = n
	}

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return snap
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		values = append(values, sm.ms)
		sum += sm.ms
	}
	slices.Sort(values)

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (s *LatencyStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	kept := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.at.Before(cutoff) {
			kept = append(kept, sm)
		}
	}
	s.samples = kept
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []int64, pct float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[n-1])
	}

	rank := float64(n-1) * pct / 100.0
	lower := int(rank)
	if lower+1 >= n {
		return float64(sorted[lower])
	}
	weight := rank - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}
