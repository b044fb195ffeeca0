package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/facecue/internal/gesture"
)

type recorder struct {
	mu     sync.Mutex
	events []gesture.Event
}

func (r *recorder) sink(name string) *FuncSink {
	return Func(name, func(_ context.Context, ev gesture.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) kinds() []gesture.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]gesture.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func event(kind gesture.Kind) gesture.Event {
	return gesture.Event{Kind: kind, Session: "s1", Timestamp: time.UnixMilli(1_700_000_000_000)}
}

func TestEmitter_FanOutInOrder(t *testing.T) {
	e := NewEmitter(zerolog.Nop(), 8)
	var a, b recorder
	e.Register(a.sink("a"))
	e.Register(b.sink("b"))

	e.Emit(event(gesture.KindBlink))
	e.Emit(event(gesture.KindMouthOpen))
	e.Emit(event(gesture.KindHeadTurn))
	e.Close()

	want := []gesture.Kind{gesture.KindBlink, gesture.KindMouthOpen, gesture.KindHeadTurn}
	assert.Equal(t, want, a.kinds())
	assert.Equal(t, want, b.kinds())

	stats := e.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, Stats{Name: "a", Delivered: 3}, stats[0])
}

func TestEmitter_SlowSinkDoesNotBlock(t *testing.T) {
	e := NewEmitter(zerolog.Nop(), 4)

	release := make(chan struct{})
	var slowCalls atomic.Int32
	e.Register(Func("slow", func(_ context.Context, _ gesture.Event) error {
		slowCalls.Add(1)
		<-release
		return nil
	}))

	var fast recorder
	e.Register(fast.sink("fast"))

	const total = 20
	for i := 0; i < total; i++ {
		done := make(chan struct{})
		go func() {
			e.Emit(event(gesture.KindBlink))
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Emit blocked on a slow sink")
		}

		want := i + 1
		require.Eventually(t, func() bool { return fast.len() == want }, time.Second, time.Millisecond)
	}

	close(release)
	e.Close()

	stats := e.Stats()
	assert.Equal(t, uint64(total), stats[1].Delivered)
	assert.Zero(t, stats[1].Dropped)

	slow := stats[0]
	assert.GreaterOrEqual(t, slow.Dropped, uint64(total-5))
	assert.Equal(t, uint64(total), slow.Delivered+slow.Dropped)
}

func TestEmitter_FailuresAreIsolated(t *testing.T) {
	e := NewEmitter(zerolog.Nop(), 8)

	e.Register(Func("panics", func(_ context.Context, _ gesture.Event) error {
		panic("boom")
	}))
	e.Register(Func("errors", func(_ context.Context, _ gesture.Event) error {
		return errors.New("unavailable")
	}))
	var ok recorder
	e.Register(ok.sink("ok"))

	e.Emit(event(gesture.KindBlink))
	e.Emit(event(gesture.KindBlink))
	e.Close()

	assert.Equal(t, 2, ok.len())

	stats := e.Stats()
	assert.Equal(t, uint64(2), stats[0].Failed)
	assert.Equal(t, uint64(2), stats[1].Failed)
	assert.Equal(t, uint64(2), stats[2].Delivered)
}

func TestEmitter_AfterClose(t *testing.T) {
	e := NewEmitter(zerolog.Nop(), 0)
	var r recorder
	e.Register(r.sink("r"))
	e.Close()
	e.Close()

	assert.NotPanics(t, func() { e.Emit(event(gesture.KindBlink)) })
	e.Register(r.sink("late"))
	assert.Zero(t, r.len())
	assert.Len(t, e.Stats(), 1)
}

func TestEmitter_CloseDrains(t *testing.T) {
	e := NewEmitter(zerolog.Nop(), 32)
	var r recorder
	e.Register(Func("delayed", func(ctx context.Context, ev gesture.Event) error {
		time.Sleep(time.Millisecond)
		return r.sink("inner").Write(ctx, ev)
	}))

	for i := 0; i < 10; i++ {
		e.Emit(event(gesture.KindBlink))
	}
	e.Close()

	assert.Equal(t, 10, r.len())
}

func TestFilter(t *testing.T) {
	var r recorder
	s := Filter(r.sink("only-blinks"), gesture.KindBlink)
	assert.Equal(t, "only-blinks", s.Name())

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, event(gesture.KindHeadTurn)))
	require.NoError(t, s.Write(ctx, event(gesture.KindBlink)))
	assert.Equal(t, []gesture.Kind{gesture.KindBlink}, r.kinds())

	unfiltered := r.sink("all")
	assert.Same(t, unfiltered, Filter(unfiltered))
}
