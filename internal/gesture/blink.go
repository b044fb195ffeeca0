package gesture

import (
	"errors"
	"fmt"

	"github.com/ayusman/facecue/internal/feature"
)

// ErrUnknownPolicy is returned for an unrecognized blink policy name.
var ErrUnknownPolicy = errors.New("unknown blink policy")

// Blink policy names.
const (
	PolicyAverage = "average"
	PolicyPerEye  = "per_eye"
)

// Phase is the blink machine phase.
type Phase string

const (
	PhaseOpen    Phase = "open"
	PhaseClosing Phase = "closing"
)

// BlinkState is the explicit blink lock: a phase plus a consecutive-frame counter.
// Fired marks that the current closed run has already produced its event.
type BlinkState struct {
	Phase      Phase `json:"phase"`
	Counter    int   `json:"counter"`
	Fired      bool  `json:"fired"`
	LeftCount  int   `json:"leftCount,omitempty"`
	RightCount int   `json:"rightCount,omitempty"`
}

// BlinkPolicy decides when a run of closed-eye frames is a blink.
type BlinkPolicy interface {
	// Name returns the policy's configuration name.
	Name() string

	// Step consumes one frame and reports whether a blink is confirmed on it.
	Step(m feature.Metrics, p Params) bool

	// State returns the current lock state.
	State() BlinkState

	// Reset re-arms the policy.
	Reset()
}

// NewBlinkPolicy returns the policy registered under name.
func NewBlinkPolicy(name string) (BlinkPolicy, error) {
	switch name {
	case PolicyAverage, "":
		return NewAverageBlink(), nil
	case PolicyPerEye:
		return NewPerEyeBlink(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// AverageBlink thresholds the averaged EAR with one shared debounce counter.
type AverageBlink struct {
	state BlinkState
}

// NewAverageBlink creates an armed AverageBlink.
func NewAverageBlink() *AverageBlink {
	return &AverageBlink{state: BlinkState{Phase: PhaseOpen}}
}

// Name implements BlinkPolicy.
func (b *AverageBlink) Name() string { return PolicyAverage }

// Step implements BlinkPolicy. A sustained closed run fires at most once; any
// open frame re-arms regardless of whether the run fired.
func (b *AverageBlink) Step(m feature.Metrics, p Params) bool {
	if m.EARAvg >= p.EARThreshold {
		b.state = BlinkState{Phase: PhaseOpen}
		return false
	}

	if b.state.Phase == PhaseOpen {
		b.state.Phase = PhaseClosing
		b.state.Counter = 1
	} else {
		b.state.Counter++
	}

	if !b.state.Fired && b.state.Counter >= p.DebounceFrames {
		b.state.Fired = true
		return true
	}
	return false
}

// State implements BlinkPolicy.
func (b *AverageBlink) State() BlinkState { return b.state }

// Reset implements BlinkPolicy.
func (b *AverageBlink) Reset() { b.state = BlinkState{Phase: PhaseOpen} }

// PerEyeBlink requires each eye to stay closed for the debounce count.
// The lock releases as soon as either eye no longer satisfies it.
type PerEyeBlink struct {
	state BlinkState
}

// NewPerEyeBlink creates an armed PerEyeBlink.
func NewPerEyeBlink() *PerEyeBlink {
	return &PerEyeBlink{state: BlinkState{Phase: PhaseOpen}}
}

// Name implements BlinkPolicy.
func (b *PerEyeBlink) Name() string { return PolicyPerEye }

// Step implements BlinkPolicy.
func (b *PerEyeBlink) Step(m feature.Metrics, p Params) bool {
	s := &b.state

	if m.EARLeft < p.EARThreshold {
		s.LeftCount++
	} else {
		s.LeftCount = 0
	}
	if m.EARRight < p.EARThreshold {
		s.RightCount++
	} else {
		s.RightCount = 0
	}

	s.Counter = min(s.LeftCount, s.RightCount)
	if s.LeftCount == 0 && s.RightCount == 0 {
		s.Phase = PhaseOpen
	} else {
		s.Phase = PhaseClosing
	}

	if s.LeftCount >= p.DebounceFrames && s.RightCount >= p.DebounceFrames {
		if s.Fired {
			return false
		}
		s.Fired = true
		return true
	}

	s.Fired = false
	return false
}

// State implements BlinkPolicy.
func (b *PerEyeBlink) State() BlinkState { return b.state }

// Reset implements BlinkPolicy.
func (b *PerEyeBlink) Reset() { b.state = BlinkState{Phase: PhaseOpen} }
