// Package landmark defines facial landmark frames and the sources that deliver them.
package landmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEmptyFrame is returned when a decoded frame carries no landmark points.
	ErrEmptyFrame = errors.New("frame has no landmarks")
	// ErrMalformedFrame is returned for input that is not a landmark frame.
	ErrMalformedFrame = errors.New("malformed frame")
)

// IsDecodeError reports whether err came from decoding a single frame, as
// opposed to reading the stream it came from.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrEmptyFrame)
}

// Point represents a landmark position in frame coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Frame is one set of face landmarks keyed by their stable index, plus the capture time.
// Frames are produced upstream, consumed once and never retained.
type Frame struct {
	Timestamp time.Time
	Points    map[int]Point
}

// NewFrame creates an empty frame captured at ts.
func NewFrame(ts time.Time) Frame {
	return Frame{Timestamp: ts, Points: make(map[int]Point)}
}

// Get returns the point for idx and whether it is present.
func (f Frame) Get(idx int) (Point, bool) {
	p, ok := f.Points[idx]
	return p, ok
}

// Distance returns the Euclidean distance between a and b in the image plane.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Centroid returns the mean position of pts. It returns the zero point for an empty slice.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
		c.Z += p.Z
	}
	n := float64(len(pts))
	return Point{X: c.X / n, Y: c.Y / n, Z: c.Z / n}
}

// jsonFrame is the wire shape accepted from landmark producers.
// Points may be sent keyed by index or as a dense array where position is the index.
type jsonFrame struct {
	Timestamp int64         `json:"timestamp"`
	Points    map[int]Point `json:"points,omitempty"`
	Landmarks []Point       `json:"landmarks,omitempty"`
}

// DecodeFrame parses a JSON landmark frame. A zero timestamp is stamped with the current time.
func DecodeFrame(data []byte) (Frame, error) {
	var jf jsonFrame
	if err := json.Unmarshal(data, &jf); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	ts := time.Now()
	if jf.Timestamp > 0 {
		ts = time.UnixMilli(jf.Timestamp)
	}

	frame := NewFrame(ts)
	for i, p := range jf.Landmarks {
		frame.Points[i] = p
	}
	for i, p := range jf.Points {
		frame.Points[i] = p
	}

	if len(frame.Points) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	return frame, nil
}

// MarshalJSON encodes the frame in the keyed wire shape.
func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonFrame{
		Timestamp: f.Timestamp.UnixMilli(),
		Points:    f.Points,
	})
}
