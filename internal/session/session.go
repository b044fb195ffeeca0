// Package session runs the per-stream detection pipeline:
// extract, smooth, detect, aggregate, emit.
package session

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecue/internal/config"
	"github.com/ayusman/facecue/internal/feature"
	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/landmark"
	"github.com/ayusman/facecue/internal/metrics"
	"github.com/ayusman/facecue/internal/rate"
	"github.com/ayusman/facecue/internal/smoothing"
)

var (
	// ErrOutOfOrder is returned for a frame older than the last processed one.
	ErrOutOfOrder = errors.New("frame out of order")
	// ErrClosed is returned for frames offered to a closed session.
	ErrClosed = errors.New("session closed")
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")
)

// Emitter receives finalized events. *sink.Emitter satisfies it.
type Emitter interface {
	Emit(ev gesture.Event)
}

// Result is the display snapshot produced by one processed frame.
type Result struct {
	Session   string           `json:"session"`
	Timestamp int64            `json:"timestamp"`
	Raw       feature.Metrics  `json:"raw"`
	Smoothed  feature.Metrics  `json:"smoothed"`
	States    gesture.States   `json:"states"`
	BlinkRate int              `json:"blinkRate"`
	Events    []gesture.Record `json:"events"`
}

// Summary is the persisted outline of a session.
type Summary struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	Frames     int        `json:"frames"`
	Skipped    int        `json:"skipped"`
	Blinks     int        `json:"blinks"`
	MouthOpens int        `json:"mouthOpens"`
	HeadTurns  int        `json:"headTurns"`
	BlinkRate  int        `json:"blinkRate"`
}

// Options configure a new Session.
type Options struct {
	Source    string
	Layout    feature.Layout
	Detection config.Detection
	Emitter   Emitter
	Logger    zerolog.Logger
}

// Session owns all per-stream state. Tick must be called from one goroutine;
// Summary may be read from any.
type Session struct {
	id      string
	source  string
	started time.Time
	layout  feature.Layout
	emitter Emitter
	log     zerolog.Logger

	smoother *smoothing.Smoother
	detector *gesture.Detector
	rate     *rate.Aggregator

	last    time.Time
	frames  int
	skipped int
	closed  bool

	summary atomic.Pointer[Summary]
}

// New creates a session with the initial detection settings.
func New(id string, opts Options) (*Session, error) {
	if err := opts.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if err := opts.Detection.Validate(); err != nil {
		return nil, err
	}

	smoother, err := smoothing.New(opts.Detection.SmoothingWindow)
	if err != nil {
		return nil, err
	}
	policy, err := gesture.NewBlinkPolicy(opts.Detection.BlinkPolicy)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       id,
		source:   opts.Source,
		started:  time.Now(),
		layout:   opts.Layout,
		emitter:  opts.Emitter,
		log:      opts.Logger.With().Str("session", id).Logger(),
		smoother: smoother,
		detector: gesture.NewDetector(policy),
		rate:     rate.NewAggregator(opts.Detection.RateWindow),
	}
	s.publish(0)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Tick processes one frame with the given settings snapshot. On error the
// gesture state is left untouched and the frame counts as skipped.
func (s *Session) Tick(frame landmark.Frame, cfg config.Detection) (Result, error) {
	if s.closed {
		return Result{}, ErrClosed
	}
	start := time.Now()

	if !s.last.IsZero() && frame.Timestamp.Before(s.last) {
		s.skip(metrics.ReasonOutOfOrder)
		return Result{}, fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
			frame.Timestamp.Format(time.RFC3339Nano), s.last.Format(time.RFC3339Nano))
	}

	raw, err := feature.Extract(frame, s.layout)
	if err != nil {
		s.skip(metrics.ReasonMissingLandmarks)
		return Result{}, err
	}

	if err := s.apply(cfg); err != nil {
		s.skip(metrics.ReasonInvalidConfig)
		return Result{}, err
	}

	if raw.Degenerate {
		s.log.Debug().Msg("degenerate geometry, using floored denominators")
	}

	smoothed := s.smoother.Smooth(raw)
	events := s.detector.Step(smoothed, cfg.Params(), frame.Timestamp)

	records := make([]gesture.Record, 0, len(events))
	for i := range events {
		events[i].Session = s.id
		if events[i].Kind == gesture.KindBlink {
			s.rate.Record(frame.Timestamp)
		}
		records = append(records, events[i].Record())
	}
	blinkRate := s.rate.Rate(frame.Timestamp)

	if s.emitter != nil {
		for _, ev := range events {
			s.emitter.Emit(ev)
		}
	}

	s.last = frame.Timestamp
	s.frames++
	s.publish(blinkRate)

	metrics.FramesProcessed.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	metrics.BlinkRate.WithLabelValues(s.id).Set(float64(blinkRate))

	return Result{
		Session:   s.id,
		Timestamp: frame.Timestamp.UnixMilli(),
		Raw:       raw,
		Smoothed:  smoothed,
		States:    s.detector.States(),
		BlinkRate: blinkRate,
		Events:    records,
	}, nil
}

// apply brings the smoother window, blink policy and rate window in line with cfg.
func (s *Session) apply(cfg config.Detection) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.SmoothingWindow != s.smoother.Window() {
		if err := s.smoother.SetWindow(cfg.SmoothingWindow); err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
	}
	if cfg.BlinkPolicy != "" && cfg.BlinkPolicy != s.detector.Policy() {
		policy, err := gesture.NewBlinkPolicy(cfg.BlinkPolicy)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		s.detector.SetPolicy(policy)
		s.log.Info().Str("policy", policy.Name()).Msg("blink policy changed")
	}
	s.rate.SetRetention(cfg.RateWindow)
	return nil
}

func (s *Session) skip(reason string) {
	s.skipped++
	metrics.FramesSkipped.WithLabelValues(reason).Inc()
	s.publish(s.summary.Load().BlinkRate)
}

// publish stores a copy of the counters for concurrent readers.
func (s *Session) publish(blinkRate int) {
	st := s.detector.States()
	s.summary.Store(&Summary{
		ID:         s.id,
		Source:     s.source,
		StartedAt:  s.started,
		Frames:     s.frames,
		Skipped:    s.skipped,
		Blinks:     st.Blinks,
		MouthOpens: st.Mouth.Opens,
		HeadTurns:  st.HeadTurns,
		BlinkRate:  blinkRate,
	})
}

// Summary returns the latest counters. Safe for concurrent use.
func (s *Session) Summary() Summary {
	return *s.summary.Load()
}

// Close ends the session and discards its in-memory state. Subsequent Ticks
// return ErrClosed.
func (s *Session) Close() Summary {
	if s.closed {
		return s.Summary()
	}
	s.closed = true

	sum := s.Summary()
	now := time.Now()
	sum.EndedAt = &now
	s.summary.Store(&sum)

	s.smoother.Reset()
	s.rate.Reset()
	metrics.BlinkRate.DeleteLabelValues(s.id)
	return sum
}
