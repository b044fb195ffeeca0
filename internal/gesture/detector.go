package gesture

import (
	"time"

	"github.com/ayusman/facecue/internal/feature"
)

// States is the display snapshot of every gesture machine.
type States struct {
	Blink     BlinkState `json:"blink"`
	Policy    string     `json:"policy"`
	Mouth     MouthState `json:"mouth"`
	Direction Direction  `json:"direction"`
	Blinks    int        `json:"blinks"`
	HeadTurns int        `json:"headTurns"`
}

// Detector runs the blink, mouth and head-turn machines for one session.
// It is not safe for concurrent use.
type Detector struct {
	blink     BlinkPolicy
	mouth     *MouthMachine
	direction Direction
	blinks    int
	headTurns int
}

// NewDetector creates a Detector with the given blink policy.
func NewDetector(policy BlinkPolicy) *Detector {
	if policy == nil {
		policy = NewAverageBlink()
	}
	return &Detector{
		blink:     policy,
		mouth:     NewMouthMachine(),
		direction: DirectionCenter,
	}
}

// SetPolicy swaps the blink policy. The new policy starts armed.
func (d *Detector) SetPolicy(policy BlinkPolicy) {
	policy.Reset()
	d.blink = policy
}

// Policy returns the active blink policy name.
func (d *Detector) Policy() string {
	return d.blink.Name()
}

// Step feeds one frame of smoothed metrics to every machine and returns the
// events fired on it, in blink, mouth, head-turn order.
func (d *Detector) Step(m feature.Metrics, p Params, ts time.Time) []Event {
	var events []Event

	if d.blink.Step(m, p) {
		d.blinks++
		events = append(events, Event{Kind: KindBlink, Metrics: m, Timestamp: ts})
	}

	if kind, ok := d.mouth.Step(m.MAR, p); ok {
		events = append(events, Event{Kind: kind, Metrics: m, Timestamp: ts})
	}

	dir, emit := HeadTurn(m.NormalizedX, p)
	d.direction = dir
	if emit {
		d.headTurns++
		events = append(events, Event{Kind: KindHeadTurn, Metrics: m, Timestamp: ts, Direction: dir})
	}

	return events
}

// States returns the current snapshot.
func (d *Detector) States() States {
	return States{
		Blink:     d.blink.State(),
		Policy:    d.blink.Name(),
		Mouth:     d.mouth.State(),
		Direction: d.direction,
		Blinks:    d.blinks,
		HeadTurns: d.headTurns,
	}
}

// Reset re-arms every machine and clears the counters.
func (d *Detector) Reset() {
	d.blink.Reset()
	d.mouth.Reset()
	d.direction = DirectionCenter
	d.blinks = 0
	d.headTurns = 0
}
