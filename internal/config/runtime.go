package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Runtime holds the current Detection snapshot. Readers take one snapshot per
// frame; writers replace it atomically, so a frame never observes a mix of
// old and new values.
type Runtime struct {
	current atomic.Pointer[Detection]

	// writeMu serializes writers so a Patch merges onto the latest snapshot.
	writeMu sync.Mutex

	mu   sync.Mutex
	subs []func(Detection)
}

// NewRuntime creates a Runtime seeded with d.
func NewRuntime(d Detection) (*Runtime, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{}
	r.current.Store(&d)
	return r, nil
}

// Snapshot returns the current settings.
func (r *Runtime) Snapshot() Detection {
	return *r.current.Load()
}

// Update validates d and makes it current. An invalid value leaves the prior
// snapshot in place.
func (r *Runtime) Update(d Detection) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.writeMu.Lock()
	r.current.Store(&d)
	r.writeMu.Unlock()

	r.notify(d)
	return nil
}

// Patch applies a partial JSON document on top of the current snapshot. The
// read, merge and store happen under one lock, so concurrent patches each
// see the other's result.
func (r *Runtime) Patch(data []byte) (Detection, error) {
	r.writeMu.Lock()
	next := *r.current.Load()
	if err := json.Unmarshal(data, &next); err != nil {
		r.writeMu.Unlock()
		return Detection{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := next.Validate(); err != nil {
		r.writeMu.Unlock()
		return Detection{}, err
	}
	r.current.Store(&next)
	r.writeMu.Unlock()

	r.notify(next)
	return next, nil
}

func (r *Runtime) notify(d Detection) {
	r.mu.Lock()
	subs := append([]func(Detection){}, r.subs...)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(d)
	}
}

// Subscribe registers fn to run after every successful update.
func (r *Runtime) Subscribe(fn func(Detection)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}
