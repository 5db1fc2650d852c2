package agent

import (
	"net/http"
	"slices"
	"sync"
	"time"
)

type sample struct {
	at         time.Time
	durationMs int64
	status     int
}

// StatsSnapshot aggregates the model calls inside the window.
type StatsSnapshot struct {
	Count     int     `json:"count"`
	Failed    int     `json:"failed"`
	Throttled int     `json:"throttled"`
	MinMs     int64   `json:"min_ms"`
	MaxMs     int64   `json:"max_ms"`
	AvgMs     float64 `json:"avg_ms"`
	P50Ms     float64 `json:"p50_ms"`
	P95Ms     float64 `json:"p95_ms"`
	P99Ms     float64 `json:"p99_ms"`
}

// LLMStats keeps a rolling window of model call latencies and outcomes.
type LLMStats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
	now     func() time.Time
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{
		samples: make([]sample, 0, 256),
		window:  window,
		now:     time.Now,
	}
}

// Record adds one completed call with its HTTP status.
func (s *LLMStats) Record(durationMs int64, status int) {
	durationMs = max(durationMs, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, durationMs: durationMs, status: status})
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	var snap StatsSnapshot
	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		switch {
		case sm.status == http.StatusTooManyRequests:
			snap.Throttled++
			snap.Failed++
		case sm.status != http.StatusOK:
			snap.Failed++
		}
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

func (s *LLMStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	kept := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.at.Before(cutoff) {
			kept = append(kept, sm)
		}
	}
	s.samples = kept
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	rank := float64(len(sorted)-1) * pct / 100
	lower := int(rank)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*(rank-float64(lower))
}
