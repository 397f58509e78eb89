package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyWindow keeps the most recent request latencies for percentile reporting.
type LatencyWindow struct {
	mu        sync.RWMutex
	latencies []time.Duration
	max       int
}

func NewLatencyWindow(max int) *LatencyWindow {
	if max <= 0 {
		max = 1
	}
	return &LatencyWindow{
		latencies: make([]time.Duration, 0, max),
		max:       max,
	}
}

func (w *LatencyWindow) Record(latency time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.latencies = append(w.latencies, latency)

	// edge case: maintain rolling window by dropping the oldest measurements
	if len(w.latencies) > w.max {
		w.latencies = append(w.latencies[:0], w.latencies[len(w.latencies)-w.max:]...)
	}
}

func (w *LatencyWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.latencies)
}

// Percentiles returns p50, p99 and p99.9 in milliseconds.
func (w *LatencyWindow) Percentiles() (p50, p99, p999 float64) {
	w.mu.RLock()
	sorted := make([]time.Duration, len(w.latencies))
	copy(sorted, w.latencies)
	w.mu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(q float64) float64 {
		idx := int(float64(len(sorted)) * q)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return float64(sorted[idx].Nanoseconds()) / 1e6
	}
	return at(0.50), at(0.99), at(0.999)
}
