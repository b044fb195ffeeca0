package sink

import (
	"context"
	"slices"

	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/metrics"
)

// FuncSink adapts a callback into a Sink.
type FuncSink struct {
	name string
	fn   func(ctx context.Context, ev gesture.Event) error
}

// Func creates a FuncSink.
func Func(name string, fn func(ctx context.Context, ev gesture.Event) error) *FuncSink {
	return &FuncSink{name: name, fn: fn}
}

// Name implements Sink.
func (s *FuncSink) Name() string { return s.name }

// Write implements Sink.
func (s *FuncSink) Write(ctx context.Context, ev gesture.Event) error {
	return s.fn(ctx, ev)
}

type filtered struct {
	Sink
	kinds []gesture.Kind
}

// Filter wraps s so that it only receives the given kinds. With no kinds, s is returned unchanged.
func Filter(s Sink, kinds ...gesture.Kind) Sink {
	if len(kinds) == 0 {
		return s
	}
	return &filtered{Sink: s, kinds: kinds}
}

func (f *filtered) Write(ctx context.Context, ev gesture.Event) error {
	if !slices.Contains(f.kinds, ev.Kind) {
		return nil
	}
	return f.Sink.Write(ctx, ev)
}

// MetricsSink counts events by type.
type MetricsSink struct{}

// NewMetricsSink creates a MetricsSink.
func NewMetricsSink() *MetricsSink { return &MetricsSink{} }

// Name implements Sink.
func (*MetricsSink) Name() string { return "metrics" }

// Write implements Sink.
func (*MetricsSink) Write(_ context.Context, ev gesture.Event) error {
	metrics.GestureEvents.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}
