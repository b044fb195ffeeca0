// Package gesture turns smoothed face metrics into discrete gesture events.
package gesture

import (
	"time"

	"github.com/ayusman/facecue/internal/feature"
)

// Kind identifies the type of gesture event.
type Kind string

const (
	// KindBlink is a confirmed eye blink.
	KindBlink Kind = "blink"
	// KindMouthOpen fires when the mouth crosses into the open state.
	KindMouthOpen Kind = "mouth_open"
	// KindMouthClose fires when the mouth crosses back to closed.
	KindMouthClose Kind = "mouth_close"
	// KindHeadTurn fires on every frame with a large head yaw.
	KindHeadTurn Kind = "head_turn"
)

// Kinds lists every event kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindBlink, KindMouthOpen, KindMouthClose, KindHeadTurn}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBlink, KindMouthOpen, KindMouthClose, KindHeadTurn:
		return true
	}
	return false
}

// Direction is the classified head orientation.
type Direction string

const (
	DirectionCenter Direction = "center"
	DirectionLeft   Direction = "left"
	DirectionRight  Direction = "right"
)

// Event is a finalized gesture, handed to the emitter right after creation.
type Event struct {
	Kind      Kind            `json:"kind"`
	Session   string          `json:"session,omitempty"`
	Metrics   feature.Metrics `json:"metrics"`
	Timestamp time.Time       `json:"timestamp"`
	Direction Direction       `json:"direction,omitempty"`
}

// Record is the flat transport shape of an event.
type Record struct {
	Type      string   `json:"type"`
	EAR       *float64 `json:"ear,omitempty"`
	MAR       *float64 `json:"mar,omitempty"`
	YawDeg    *float64 `json:"yawDeg,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Session   string   `json:"session,omitempty"`
}

// Record flattens the event, keeping only the metric relevant to its kind.
func (e Event) Record() Record {
	r := Record{
		Type:      string(e.Kind),
		Timestamp: e.Timestamp.UnixMilli(),
		Session:   e.Session,
	}

	switch e.Kind {
	case KindBlink:
		v := e.Metrics.EARAvg
		r.EAR = &v
	case KindMouthOpen, KindMouthClose:
		v := e.Metrics.MAR
		r.MAR = &v
	case KindHeadTurn:
		v := e.Metrics.YawDeg
		r.YawDeg = &v
		if e.Direction == DirectionLeft || e.Direction == DirectionRight {
			r.Direction = string(e.Direction)
		}
	}
	return r
}

// Params are the detection thresholds read once per frame.
type Params struct {
	EARThreshold   float64
	MARThreshold   float64
	DebounceFrames int
	TurnLeft       float64
	TurnRight      float64
	TurnEmit       float64
}
