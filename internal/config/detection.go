// Package config holds the file configuration and the live detection settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ayusman/facecue/internal/gesture"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Detection is the set of tunables read once per processed frame.
type Detection struct {
	EARThreshold       float64       `mapstructure:"ear_threshold" yaml:"ear_threshold" json:"ear_threshold" validate:"gt=0,lt=1"`
	MARThreshold       float64       `mapstructure:"mar_threshold" yaml:"mar_threshold" json:"mar_threshold" validate:"gt=0"`
	SmoothingWindow    int           `mapstructure:"smoothing_window" yaml:"smoothing_window" json:"smoothing_window" validate:"gte=1"`
	DebounceFrames     int           `mapstructure:"debounce_frames" yaml:"debounce_frames" json:"debounce_frames" validate:"gte=1"`
	TurnLeftThreshold  float64       `mapstructure:"turn_left_threshold" yaml:"turn_left_threshold" json:"turn_left_threshold" validate:"gt=0"`
	TurnRightThreshold float64       `mapstructure:"turn_right_threshold" yaml:"turn_right_threshold" json:"turn_right_threshold" validate:"gt=0"`
	TurnEmitThreshold  float64       `mapstructure:"turn_emit_threshold" yaml:"turn_emit_threshold" json:"turn_emit_threshold" validate:"gt=0"`
	RateWindow         time.Duration `mapstructure:"rate_window" yaml:"rate_window" json:"rate_window" validate:"gt=0"`
	BlinkPolicy        string        `mapstructure:"blink_policy" yaml:"blink_policy" json:"blink_policy" validate:"oneof=average per_eye"`
}

// DefaultDetection returns the default detection settings.
func DefaultDetection() Detection {
	return Detection{
		EARThreshold:       0.22,
		MARThreshold:       0.30,
		SmoothingWindow:    5,
		DebounceFrames:     2,
		TurnLeftThreshold:  0.12,
		TurnRightThreshold: 0.12,
		TurnEmitThreshold:  0.35,
		RateWindow:         60 * time.Second,
		BlinkPolicy:        gesture.PolicyAverage,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field. Errors wrap ErrInvalidConfig.
func (d Detection) Validate() error {
	if err := validate.Struct(d); err != nil {
		return invalid(err)
	}
	if d.TurnEmitThreshold < d.TurnLeftThreshold || d.TurnEmitThreshold < d.TurnRightThreshold {
		return fmt.Errorf("%w: turn_emit_threshold %.3f must be >= both turn thresholds",
			ErrInvalidConfig, d.TurnEmitThreshold)
	}
	return nil
}

// Params converts the snapshot into gesture thresholds.
func (d Detection) Params() gesture.Params {
	return gesture.Params{
		EARThreshold:   d.EARThreshold,
		MARThreshold:   d.MARThreshold,
		DebounceFrames: d.DebounceFrames,
		TurnLeft:       d.TurnLeftThreshold,
		TurnRight:      d.TurnRightThreshold,
		TurnEmit:       d.TurnEmitThreshold,
	}
}

type detectionJSON Detection

type detectionWire struct {
	detectionJSON
	RateWindow any `json:"rate_window"`
}

// MarshalJSON renders rate_window as a duration string.
func (d Detection) MarshalJSON() ([]byte, error) {
	return json.Marshal(detectionWire{
		detectionJSON: detectionJSON(d),
		RateWindow:    d.RateWindow.String(),
	})
}

// UnmarshalJSON accepts rate_window as a duration string or a number of seconds.
// Absent fields keep their current value.
func (d *Detection) UnmarshalJSON(data []byte) error {
	w := detectionWire{detectionJSON: detectionJSON(*d)}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch v := w.RateWindow.(type) {
	case nil:
	case string:
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("rate_window: %w", err)
		}
		w.detectionJSON.RateWindow = dur
	case float64:
		w.detectionJSON.RateWindow = time.Duration(v * float64(time.Second))
	default:
		return fmt.Errorf("rate_window: unsupported value %v", v)
	}

	*d = Detection(w.detectionJSON)
	return nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}
