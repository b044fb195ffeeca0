// Package metrics exposes Prometheus collectors for the detection pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facecue_frames_processed_total",
			Help: "Total number of landmark frames processed",
		},
	)

	FramesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facecue_frames_skipped_total",
			Help: "Total number of landmark frames skipped",
		},
		[]string{"reason"},
	)

	GestureEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facecue_gesture_events_total",
			Help: "Total number of gesture events emitted",
		},
		[]string{"type"},
	)

	SinkDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facecue_sink_dropped_total",
			Help: "Events dropped because a sink queue was full",
		},
		[]string{"sink"},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facecue_sink_failures_total",
			Help: "Sink write errors and recovered panics",
		},
		[]string{"sink"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facecue_active_sessions",
			Help: "Number of active sessions",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facecue_tick_duration_seconds",
			Help:    "Per-frame processing latency in seconds",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		},
	)

	BlinkRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "facecue_blink_rate",
			Help: "Blinks within the trailing rate window, per session",
		},
		[]string{"session"},
	)
)

// Skip reasons.
const (
	ReasonMissingLandmarks = "missing_landmarks"
	ReasonOutOfOrder       = "out_of_order"
	ReasonInvalidConfig    = "invalid_config"
	ReasonDecode           = "decode"
	ReasonThrottled        = "throttled"
	ReasonSuperseded       = "superseded"
	ReasonDisabled         = "disabled"
)
