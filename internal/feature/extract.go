// Package feature computes geometric face metrics from a landmark frame.
package feature

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/facecue/internal/landmark"
)

// ErrMissingLandmarks is returned when a frame lacks an index a metric group requires.
var ErrMissingLandmarks = errors.New("missing landmarks")

// MissingLandmarksError names the group and index that was absent.
type MissingLandmarksError struct {
	Group string
	Index int
}

func (e *MissingLandmarksError) Error() string {
	return fmt.Sprintf("missing landmarks: %s index %d", e.Group, e.Index)
}

// Is reports ErrMissingLandmarks so callers can match on the sentinel.
func (e *MissingLandmarksError) Is(target error) bool {
	return target == ErrMissingLandmarks
}

// floor replaces zero-length denominators.
const floor = 1.0

// Metrics holds the per-frame geometric measurements.
type Metrics struct {
	EARLeft     float64 `json:"earLeft"`
	EARRight    float64 `json:"earRight"`
	EARAvg      float64 `json:"earAvg"`
	MAR         float64 `json:"mar"`
	YawDeg      float64 `json:"yawDeg"`
	NormalizedX float64 `json:"normalizedX"`

	// Degenerate is set when a denominator was zero and the floor was substituted.
	Degenerate bool `json:"degenerate,omitempty"`
}

// Extract computes metrics for one frame. It is a pure function.
// If any required index is absent it returns a *MissingLandmarksError and zero Metrics.
func Extract(frame landmark.Frame, layout Layout) (Metrics, error) {
	right, err := collect(frame, "right_eye", layout.RightEye[:])
	if err != nil {
		return Metrics{}, err
	}
	left, err := collect(frame, "left_eye", layout.LeftEye[:])
	if err != nil {
		return Metrics{}, err
	}
	upper, err := collect(frame, "upper_lip", layout.UpperLip)
	if err != nil {
		return Metrics{}, err
	}
	lower, err := collect(frame, "lower_lip", layout.LowerLip)
	if err != nil {
		return Metrics{}, err
	}
	nose, err := collect(frame, "nose", layout.Nose)
	if err != nil {
		return Metrics{}, err
	}

	var m Metrics
	var guarded bool

	m.EARLeft, guarded = eyeAspectRatio(left)
	m.Degenerate = m.Degenerate || guarded
	m.EARRight, guarded = eyeAspectRatio(right)
	m.Degenerate = m.Degenerate || guarded
	m.EARAvg = (m.EARLeft + m.EARRight) / 2

	m.MAR, guarded = mouthAspectRatio(upper, lower)
	m.Degenerate = m.Degenerate || guarded

	m.NormalizedX, m.YawDeg, guarded = yaw(landmark.Centroid(left), landmark.Centroid(right), landmark.Centroid(nose))
	m.Degenerate = m.Degenerate || guarded

	return m, nil
}

func collect(frame landmark.Frame, group string, idx []int) ([]landmark.Point, error) {
	pts := make([]landmark.Point, len(idx))
	for i, id := range idx {
		p, ok := frame.Get(id)
		if !ok {
			return nil, &MissingLandmarksError{Group: group, Index: id}
		}
		pts[i] = p
	}
	return pts, nil
}

// guard returns floor for a zero denominator and whether it was substituted.
func guard(d float64) (float64, bool) {
	if d == 0 {
		return floor, true
	}
	return d, false
}

// eyeAspectRatio computes (|p1p5| + |p2p4|) / (2|p0p3|).
func eyeAspectRatio(eye []landmark.Point) (float64, bool) {
	a := landmark.Distance(eye[1], eye[5])
	b := landmark.Distance(eye[2], eye[4])
	c, guarded := guard(landmark.Distance(eye[0], eye[3]))
	return (a + b) / (2 * c), guarded
}

// mouthAspectRatio divides the upper/lower lip centroid distance by the horizontal lip span.
func mouthAspectRatio(upper, lower []landmark.Point) (float64, bool) {
	vertical := landmark.Distance(landmark.Centroid(upper), landmark.Centroid(lower))

	minX, maxX := math.Inf(1), math.Inf(-1)
	for _, pts := range [][]landmark.Point{upper, lower} {
		for _, p := range pts {
			minX = math.Min(minX, p.X)
			maxX = math.Max(maxX, p.X)
		}
	}

	span, guarded := guard(maxX - minX)
	return vertical / span, guarded
}

// yaw estimates head rotation from the nose offset relative to the eye midpoint.
// Positive normalizedX means the nose moved toward image right, the subject's left.
func yaw(leftCenter, rightCenter, nose landmark.Point) (normalizedX, yawDeg float64, guarded bool) {
	midX := (leftCenter.X + rightCenter.X) / 2

	eyeDist, guarded := guard(landmark.Distance(leftCenter, rightCenter))
	normalizedX = (nose.X - midX) / eyeDist
	yawDeg = math.Atan2(normalizedX, 1) * 180 / math.Pi
	return normalizedX, yawDeg, guarded
}
