package gesture

import "math"

// ClassifyTurn maps normalizedX onto a direction using the two classify thresholds.
// Positive values are the subject's left.
func ClassifyTurn(normalizedX float64, p Params) Direction {
	switch {
	case normalizedX > p.TurnLeft:
		return DirectionLeft
	case normalizedX < -p.TurnRight:
		return DirectionRight
	default:
		return DirectionCenter
	}
}

// HeadTurn classifies every frame and reports whether the deviation is large
// enough to emit an event. It keeps no state between frames.
func HeadTurn(normalizedX float64, p Params) (Direction, bool) {
	return ClassifyTurn(normalizedX, p), math.Abs(normalizedX) > p.TurnEmit
}
