package kthread

import (
	"sync"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// Metrics tracks how long threads wait in the ready queue. It is attached to
// a Scheduler with WithMetrics.
//
// Thread Safety: all methods may be called from any goroutine.
//
// Example:
//
//	s, _ := New(WithMetrics(true))
//	// ...
//	m := s.Metrics()
//	m.ReadyWait.Sample()
//	fmt.Printf("P99 ready wait: %d ticks\n", m.ReadyWait.P99)
type Metrics struct {
	// ReadyWait is measured in timer ticks, from entering the ready queue
	// to being dispatched.
	ReadyWait WaitMetrics
}

// WaitMetrics is a rolling window over the most recent waits. The
// exported fields are filled in by Sample.
type WaitMetrics struct {
	P50 int64
	P90 int64
	P99 int64
	Max int64

	Mean float64
	// Sum covers the retained window only.
	Sum int64

	mu     sync.Mutex
	window [sampleSize]int64
	next   int
	filled bool
}

// sampleSize is the number of waits retained.
const sampleSize = 1000

// Record adds a wait of the given ticks, evicting the oldest once the
// window is full. The scheduler calls it on each dispatch.
func (w *WaitMetrics) Record(ticks int64) {
	w.mu.Lock()
	w.Sum += ticks - w.window[w.next]
	w.window[w.next] = ticks
	if w.next++; w.next == sampleSize {
		w.next = 0
		w.filled = true
	}
	w.mu.Unlock()
}

// Sample refreshes the percentiles, returning the number of waits they
// cover.
func (w *WaitMetrics) Sample() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.next
	if w.filled {
		n = sampleSize
	}
	if n == 0 {
		return 0
	}

	sorted := slices.Clone(w.window[:n])
	slices.Sort(sorted)
	w.P50 = sorted[percentileIndex(n, 50)]
	w.P90 = sorted[percentileIndex(n, 90)]
	w.P99 = sorted[percentileIndex(n, 99)]
	w.Max = sorted[n-1]
	w.Mean = float64(w.Sum) / float64(n)
	return n
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex[T constraints.Integer](n, p T) T {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// Metrics returns the scheduler's metrics, nil unless enabled via
// WithMetrics.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}
