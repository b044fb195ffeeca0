// Package rate counts blink events over a trailing time window.
package rate

import (
	"sync"
	"time"
)

// DefaultRetention is the trailing window used for blinks-per-minute.
const DefaultRetention = 60 * time.Second

// Aggregator keeps event timestamps inside a trailing window.
// Timestamps come from frames, not the wall clock, so replays are deterministic.
type Aggregator struct {
	mu        sync.Mutex
	retention time.Duration
	times     []time.Time
}

// NewAggregator creates an Aggregator. A non-positive retention uses DefaultRetention.
func NewAggregator(retention time.Duration) *Aggregator {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Aggregator{retention: retention}
}

// Record appends t. A timestamp older than the newest retained one is dropped
// and Record returns false; equal timestamps are kept.
func (a *Aggregator) Record(t time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.times); n > 0 && t.Before(a.times[n-1]) {
		return false
	}
	a.times = append(a.times, t)
	a.prune(t)
	return true
}

// Rate prunes entries older than the retention relative to now and returns
// how many remain.
func (a *Aggregator) Rate(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.prune(now)
	return len(a.times)
}

// Retention returns the current window.
func (a *Aggregator) Retention() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retention
}

// SetRetention changes the window. Entries are pruned on the next Rate call.
func (a *Aggregator) SetRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.retention = d
	a.mu.Unlock()
}

// Reset drops every recorded timestamp.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.times = nil
	a.mu.Unlock()
}

// prune drops entries with now - t >= retention. Entries are ordered, so the
// first kept index bounds the cut.
func (a *Aggregator) prune(now time.Time) {
	cut := 0
	for cut < len(a.times) && now.Sub(a.times[cut]) >= a.retention {
		cut++
	}
	if cut == 0 {
		return
	}
	a.times = append(a.times[:0:0], a.times[cut:]...)
}
