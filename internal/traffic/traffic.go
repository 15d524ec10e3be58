// Package traffic keeps sliding windows of request outcomes on the
// rate-limited path. It feeds the rate-limit window gauges, including the
// 5xx ratio.
package traffic

import (
	"sync"
	"time"
)

// Tracker maintains sliding windows of outcome timestamps. Entries older
// than the window are pruned on every write.
type Tracker struct {
	mu           sync.Mutex
	window       time.Duration
	now          func() time.Time
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a Tracker that remembers outcomes for window.
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{window: window, now: time.Now}
}

// RecordSuccess records a request answered below 500.
func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

// RecordError records a request answered with a 5xx.
func (t *Tracker) RecordError() {
	t.recordOutcome(&t.errorTimes)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns all outcomes (success + error + denied) within the window.
func (t *Tracker) RequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.window)
	return countInWindow(t.successTimes, cutoff) +
		countInWindow(t.errorTimes, cutoff) +
		countInWindow(t.deniedTimes, cutoff)
}

// DenialCount returns the rate-limit denials within the window.
func (t *Tracker) DenialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, t.now().Add(-t.window))
}

// ErrorRatio returns the share of answered requests within the window that
// ended in a 5xx. Denials are excluded; an empty window yields 0.
func (t *Tracker) ErrorRatio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.window)
	errCount := countInWindow(t.errorTimes, cutoff)
	total := errCount + countInWindow(t.successTimes, cutoff)
	if total == 0 {
		return 0
	}
	return float64(errCount) / float64(total)
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the window. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
