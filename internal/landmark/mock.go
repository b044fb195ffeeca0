package landmark

import (
	"context"
	"io"
	"sync"
	"time"
)

// MockSource is a test implementation of the Source interface.
// It replays pre-configured frames in order and then returns io.EOF.
type MockSource struct {
	frames []Frame
	err    error
	pos    int
	closed bool
	mu     sync.Mutex
}

// NewMockSource creates a new MockSource that replays frames.
func NewMockSource(frames ...Frame) *MockSource {
	return &MockSource{frames: frames}
}

// SetFrames replaces the frames that will be returned by Next.
func (m *MockSource) SetFrames(frames []Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
	m.pos = 0
}

// SetError sets the error that will be returned by Next.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Next returns the next pre-configured frame or error.
func (m *MockSource) Next(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Frame{}, ErrSourceClosed
	}
	if m.err != nil {
		return Frame{}, m.err
	}
	if m.pos >= len(m.frames) {
		return Frame{}, io.EOF
	}
	f := m.frames[m.pos]
	m.pos++
	return f, nil
}

// Close marks the source closed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FaceParams describes the geometry of a synthetic face frame.
type FaceParams struct {
	EARLeft     float64
	EARRight    float64
	MAR         float64
	NormalizedX float64
}

// Synthetic face geometry in a 640x480 frame.
const (
	faceCenterX   = 320.0
	eyeLineY      = 200.0
	noseY         = 240.0
	mouthY        = 300.0
	eyeWidth      = 30.0
	interEyeWidth = 60.0
	mouthWidth    = 60.0
)

// Face builds a FaceMesh frame whose eye, mouth and yaw metrics equal p exactly.
func Face(ts time.Time, p FaceParams) Frame {
	f := NewFrame(ts)

	// The subject's right eye appears on the image left
	putEye(f, RightEye, faceCenterX-interEyeWidth/2, eyeLineY, p.EARRight)
	putEye(f, LeftEye, faceCenterX+interEyeWidth/2, eyeLineY, p.EARLeft)
	putMouth(f, p.MAR)

	nose := Point{X: faceCenterX + p.NormalizedX*interEyeWidth, Y: noseY}
	for _, idx := range NoseTip {
		f.Points[idx] = nose
	}
	return f
}

// NeutralFace returns a relaxed, frontal face: eyes open, mouth closed.
func NeutralFace(ts time.Time) Frame {
	return Face(ts, FaceParams{EARLeft: 0.30, EARRight: 0.30, MAR: 0.05})
}

// ClosedEyesFace returns a frontal face with both eyes shut.
func ClosedEyesFace(ts time.Time) Frame {
	return Face(ts, FaceParams{EARLeft: 0.08, EARRight: 0.08, MAR: 0.05})
}

// OpenMouthFace returns a frontal face with the mouth wide open.
func OpenMouthFace(ts time.Time) Frame {
	return Face(ts, FaceParams{EARLeft: 0.30, EARRight: 0.30, MAR: 0.60})
}

// TurnedFace returns a face turned by normalizedX (positive is the subject's left).
func TurnedFace(ts time.Time, normalizedX float64) Frame {
	return Face(ts, FaceParams{EARLeft: 0.30, EARRight: 0.30, MAR: 0.05, NormalizedX: normalizedX})
}

// putEye places six eye points centered at (cx, cy) with aspect ratio ear.
func putEye(f Frame, idx [6]int, cx, cy, ear float64) {
	h := ear * eyeWidth / 2
	f.Points[idx[0]] = Point{X: cx - eyeWidth/2, Y: cy}
	f.Points[idx[1]] = Point{X: cx - eyeWidth/4, Y: cy - h}
	f.Points[idx[2]] = Point{X: cx + eyeWidth/4, Y: cy - h}
	f.Points[idx[3]] = Point{X: cx + eyeWidth/2, Y: cy}
	f.Points[idx[4]] = Point{X: cx + eyeWidth/4, Y: cy + h}
	f.Points[idx[5]] = Point{X: cx - eyeWidth/4, Y: cy + h}
}

// putMouth places the lip groups so that centroid distance over corner span equals mar.
// Shared indices are the corners; the rest are spread symmetrically around the center.
func putMouth(f Frame, mar float64) {
	inLower := make(map[int]bool, len(LowerLip))
	for _, idx := range LowerLip {
		inLower[idx] = true
	}
	inUpper := make(map[int]bool, len(UpperLip))
	for _, idx := range UpperLip {
		inUpper[idx] = true
	}

	upperOnly := onlyIn(UpperLip, inLower)
	lowerOnly := onlyIn(LowerLip, inUpper)

	// Corners sit on the center line, so each centroid moves by offset*share.
	upperShare := float64(len(upperOnly)) / float64(len(UpperLip))
	lowerShare := float64(len(lowerOnly)) / float64(len(LowerLip))
	offset := mar * mouthWidth / (upperShare + lowerShare)

	for idx := range mouthCornersLeft {
		f.Points[idx] = Point{X: faceCenterX - mouthWidth/2, Y: mouthY}
	}
	for idx := range mouthCornersRight {
		f.Points[idx] = Point{X: faceCenterX + mouthWidth/2, Y: mouthY}
	}
	spread(f, upperOnly, mouthY-offset)
	spread(f, lowerOnly, mouthY+offset)
}

func onlyIn(group []int, other map[int]bool) []int {
	var out []int
	for _, idx := range group {
		if !other[idx] {
			out = append(out, idx)
		}
	}
	return out
}

// spread lays idx out evenly across the inner 80% of the mouth width at height y.
func spread(f Frame, idx []int, y float64) {
	if len(idx) == 0 {
		return
	}
	left := faceCenterX - 0.4*mouthWidth
	if len(idx) == 1 {
		f.Points[idx[0]] = Point{X: faceCenterX, Y: y}
		return
	}
	step := 0.8 * mouthWidth / float64(len(idx)-1)
	for i, id := range idx {
		f.Points[id] = Point{X: left + float64(i)*step, Y: y}
	}
}
