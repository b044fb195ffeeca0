package feature

import (
	"errors"
	"fmt"

	"github.com/ayusman/facecue/internal/landmark"
)

// ErrInvalidLayout is returned when a landmark layout cannot produce metrics.
var ErrInvalidLayout = errors.New("invalid landmark layout")

// Layout names the landmark indices that form each feature group.
// Eye groups are ordered lateral corner, upper lid x2, medial corner, lower lid x2.
type Layout struct {
	LeftEye  [6]int `mapstructure:"left_eye" json:"left_eye" yaml:"left_eye"`
	RightEye [6]int `mapstructure:"right_eye" json:"right_eye" yaml:"right_eye"`
	UpperLip []int  `mapstructure:"upper_lip" json:"upper_lip" yaml:"upper_lip"`
	LowerLip []int  `mapstructure:"lower_lip" json:"lower_lip" yaml:"lower_lip"`
	Nose     []int  `mapstructure:"nose" json:"nose" yaml:"nose"`
}

// DefaultLayout returns the MediaPipe FaceMesh layout.
func DefaultLayout() Layout {
	return Layout{
		LeftEye:  landmark.LeftEye,
		RightEye: landmark.RightEye,
		UpperLip: append([]int(nil), landmark.UpperLip...),
		LowerLip: append([]int(nil), landmark.LowerLip...),
		Nose:     append([]int(nil), landmark.NoseTip...),
	}
}

// Validate checks that every group has points and indices are non-negative.
func (l Layout) Validate() error {
	groups := map[string][]int{
		"left_eye":  l.LeftEye[:],
		"right_eye": l.RightEye[:],
		"upper_lip": l.UpperLip,
		"lower_lip": l.LowerLip,
		"nose":      l.Nose,
	}
	for name, idx := range groups {
		if len(idx) == 0 {
			return fmt.Errorf("%w: %s is empty", ErrInvalidLayout, name)
		}
		for _, i := range idx {
			if i < 0 {
				return fmt.Errorf("%w: %s has negative index %d", ErrInvalidLayout, name, i)
			}
		}
	}
	if l.LeftEye == l.RightEye {
		return fmt.Errorf("%w: left_eye and right_eye are identical", ErrInvalidLayout)
	}
	return nil
}
