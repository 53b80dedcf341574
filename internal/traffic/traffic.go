// Package traffic keeps sliding windows of request outcomes. The health
// handler reads them to decide overloaded, idle and degraded states.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a finished request.
type Outcome int

const (
	// Served is a request answered from cache or store.
	Served Outcome = iota
	// Failed is a request that ended in a store error.
	Failed
	// Denied is a request rejected by the rate limiter.
	Denied
	numOutcomes
)

func (o Outcome) String() string {
	switch o {
	case Served:
		return "served"
	case Failed:
		return "failed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// retention caps how far back any window can look.
const retention = 30 * time.Minute

var defaultTracker Tracker

// Record records one outcome on the process-wide tracker.
func Record(o Outcome) { defaultTracker.Record(o) }

// RecordN records n outcomes. For synthetic load in tests.
func RecordN(o Outcome, n int) { defaultTracker.RecordN(o, n) }

// Count returns how many o outcomes fall within window.
func Count(o Outcome, window time.Duration) int { return defaultTracker.Count(o, window) }

// RequestCount returns all outcomes within window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// ErrorRate returns (failed, served+failed) within window. Denials are excluded.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears the process-wide tracker. For tests only.
func Reset() { defaultTracker.Reset() }

// Tracker holds timestamps per outcome, oldest first.
type Tracker struct {
	mu    sync.Mutex
	times [numOutcomes][]time.Time
}

func (t *Tracker) Record(o Outcome) {
	t.RecordN(o, 1)
}

func (t *Tracker) RecordN(o Outcome, n int) {
	if o < 0 || o >= numOutcomes || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for i := 0; i < n; i++ {
		t.times[o] = append(t.times[o], now)
	}
	t.pruneLocked(now)
}

func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < 0 || o >= numOutcomes {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], time.Now().Add(-window))
}

func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for o := range t.times {
		n += countSince(t.times[o], cutoff)
	}
	return n
}

func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	errors = countSince(t.times[Failed], cutoff)
	return errors, errors + countSince(t.times[Served], cutoff)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for o := range t.times {
		t.times[o] = nil
	}
}

// countSince counts timestamps at or after cutoff. times is sorted ascending.
func countSince(times []time.Time, cutoff time.Time) int {
	i := len(times)
	for i > 0 && !times[i-1].Before(cutoff) {
		i--
	}
	return len(times) - i
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
