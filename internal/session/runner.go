package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ayusman/facecue/internal/config"
	"github.com/ayusman/facecue/internal/feature"
	"github.com/ayusman/facecue/internal/landmark"
	"github.com/ayusman/facecue/internal/metrics"
)

// ResultFunc receives the outcome of every processed frame.
type ResultFunc func(Result, error)

// Runner feeds a Session from a single-slot mailbox. A frame offered while
// another is still pending replaces it, so a slow consumer drops frames
// instead of queueing or reordering them.
type Runner struct {
	session  *Session
	runtime  *config.Runtime
	onResult ResultFunc

	mu      sync.Mutex
	pending *landmark.Frame
	wake    chan struct{}

	superseded atomic.Uint64
}

// NewRunner creates a Runner. onResult may be nil.
func NewRunner(s *Session, rt *config.Runtime, onResult ResultFunc) *Runner {
	return &Runner{
		session:  s,
		runtime:  rt,
		onResult: onResult,
		wake:     make(chan struct{}, 1),
	}
}

// Session returns the session this runner feeds.
func (r *Runner) Session() *Session { return r.session }

// Offer places f in the mailbox without blocking. It reports false when an
// unprocessed frame was replaced.
func (r *Runner) Offer(f landmark.Frame) bool {
	r.mu.Lock()
	replaced := r.pending != nil
	r.pending = &f
	r.mu.Unlock()

	if replaced {
		r.superseded.Add(1)
		metrics.FramesSkipped.WithLabelValues(metrics.ReasonSuperseded).Inc()
	}

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return !replaced
}

// Superseded returns how many frames were replaced before processing.
func (r *Runner) Superseded() uint64 {
	return r.superseded.Load()
}

// Run processes frames until ctx is cancelled. A pending frame at
// cancellation is discarded.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		}

		r.mu.Lock()
		f := r.pending
		r.pending = nil
		r.mu.Unlock()

		if f == nil {
			continue
		}

		res, err := r.session.Tick(*f, r.runtime.Snapshot())
		if r.onResult != nil {
			r.onResult(res, err)
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
	}
}

// IsFrameError reports whether err only affects the frame that produced it.
func IsFrameError(err error) bool {
	return errors.Is(err, feature.ErrMissingLandmarks) ||
		errors.Is(err, ErrOutOfOrder) ||
		errors.Is(err, landmark.ErrEmptyFrame)
}
