// Package smoothing provides bounded sliding-window averaging of per-frame metrics.
package smoothing

import (
	"errors"
	"fmt"

	"github.com/ayusman/facecue/internal/feature"
)

// ErrInvalidWindow is returned when a window length below one is requested.
var ErrInvalidWindow = errors.New("smoothing window must be at least 1")

// Metric names tracked by Smooth.
const (
	EARLeft     = "earLeft"
	EARRight    = "earRight"
	EARAvg      = "earAvg"
	MAR         = "mar"
	YawDeg      = "yawDeg"
	NormalizedX = "normalizedX"
)

// Smoother keeps one bounded queue per metric name and returns the window mean.
// It is not safe for concurrent use; a session owns exactly one.
type Smoother struct {
	window int
	queues map[string][]float64
}

// New creates a Smoother with the given window length.
func New(window int) (*Smoother, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	return &Smoother{
		window: window,
		queues: make(map[string][]float64),
	}, nil
}

// Window returns the current window length.
func (s *Smoother) Window() int {
	return s.window
}

// SetWindow changes the window length. Shrinking evicts the oldest values from
// every queue immediately; growing keeps what is retained and never backfills.
func (s *Smoother) SetWindow(window int) error {
	if window < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWindow, window)
	}
	s.window = window
	for name, q := range s.queues {
		s.queues[name] = s.trim(q)
	}
	return nil
}

// Push appends v to the named queue and returns the mean of the retained values.
func (s *Smoother) Push(name string, v float64) float64 {
	q := s.trim(append(s.queues[name], v))
	s.queues[name] = q
	return mean(q)
}

// mean averages deviations from the oldest value, so a window of identical
// values returns that value exactly.
func mean(q []float64) float64 {
	ref := q[0]
	var dev float64
	for _, x := range q[1:] {
		dev += x - ref
	}
	return ref + dev/float64(len(q))
}

// Len returns how many values the named queue currently retains.
func (s *Smoother) Len(name string) int {
	return len(s.queues[name])
}

// Smooth pushes every metric of m and returns the smoothed metrics.
func (s *Smoother) Smooth(m feature.Metrics) feature.Metrics {
	return feature.Metrics{
		EARLeft:     s.Push(EARLeft, m.EARLeft),
		EARRight:    s.Push(EARRight, m.EARRight),
		EARAvg:      s.Push(EARAvg, m.EARAvg),
		MAR:         s.Push(MAR, m.MAR),
		YawDeg:      s.Push(YawDeg, m.YawDeg),
		NormalizedX: s.Push(NormalizedX, m.NormalizedX),
		Degenerate:  m.Degenerate,
	}
}

// Reset drops every queue.
func (s *Smoother) Reset() {
	s.queues = make(map[string][]float64)
}

// trim evicts the oldest entries beyond the window. The result does not alias
// evicted storage, so long runs do not pin old backing arrays.
func (s *Smoother) trim(q []float64) []float64 {
	if len(q) <= s.window {
		return q
	}
	out := make([]float64, s.window, s.window+1)
	copy(out, q[len(q)-s.window:])
	return out
}
