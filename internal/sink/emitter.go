// Package sink delivers gesture events to independent consumers.
package sink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/metrics"
)

// DefaultQueueSize is the per-sink buffer used when none is configured.
const DefaultQueueSize = 64

// Sink consumes finalized gesture events.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write delivers one event. Errors are logged and counted by the emitter.
	Write(ctx context.Context, ev gesture.Event) error
}

// Stats reports delivery counters for one sink.
type Stats struct {
	Name      string `json:"name"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

type worker struct {
	sink  Sink
	queue chan gesture.Event

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// Emitter fans events out to registered sinks. Every sink has its own queue
// and goroutine, so a slow or failing sink never blocks the pipeline or its
// peers. Emit never blocks; when a sink's queue is full the event is dropped
// for that sink only.
type Emitter struct {
	log       zerolog.Logger
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	workers []*worker
	closed  bool
	wg      sync.WaitGroup
}

// NewEmitter creates an Emitter. A non-positive queueSize uses DefaultQueueSize.
func NewEmitter(log zerolog.Logger, queueSize int) *Emitter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Emitter{
		log:       log.With().Str("component", "emitter").Logger(),
		queueSize: queueSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register starts a worker for s. Registering after Close is a no-op.
func (e *Emitter) Register(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	w := &worker{
		sink:  s,
		queue: make(chan gesture.Event, e.queueSize),
	}
	e.workers = append(e.workers, w)

	e.wg.Add(1)
	go e.run(w)
}

// Emit hands ev to every sink without waiting for delivery.
func (e *Emitter) Emit(ev gesture.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return
	}

	for _, w := range e.workers {
		select {
		case w.queue <- ev:
		default:
			w.dropped.Add(1)
			metrics.SinkDropped.WithLabelValues(w.sink.Name()).Inc()
			e.log.Warn().
				Str("sink", w.sink.Name()).
				Str("type", string(ev.Kind)).
				Msg("sink queue full, event dropped")
		}
	}
}

// Close stops accepting events, drains every queue and waits for the workers.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, w := range e.workers {
		close(w.queue)
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.cancel()
}

// Stats returns per-sink counters in registration order.
func (e *Emitter) Stats() []Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Stats, 0, len(e.workers))
	for _, w := range e.workers {
		out = append(out, Stats{
			Name:      w.sink.Name(),
			Delivered: w.delivered.Load(),
			Dropped:   w.dropped.Load(),
			Failed:    w.failed.Load(),
		})
	}
	return out
}

func (e *Emitter) run(w *worker) {
	defer e.wg.Done()
	for ev := range w.queue {
		if err := e.deliver(w, ev); err != nil {
			w.failed.Add(1)
			metrics.SinkFailures.WithLabelValues(w.sink.Name()).Inc()
			e.log.Error().
				Err(err).
				Str("sink", w.sink.Name()).
				Str("type", string(ev.Kind)).
				Msg("sink write failed")
			continue
		}
		w.delivered.Add(1)
	}
}

func (e *Emitter) deliver(w *worker, ev gesture.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return w.sink.Write(e.ctx, ev)
}
