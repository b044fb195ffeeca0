package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/facecue/internal/config"
	"github.com/ayusman/facecue/internal/feature"
	"github.com/ayusman/facecue/internal/landmark"
)

type results struct {
	mu   sync.Mutex
	res  []Result
	errs []error
}

func (r *results) add(res Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.res = append(r.res, res)
}

func (r *results) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.res) + len(r.errs)
}

func newRuntime(t *testing.T, d config.Detection) *config.Runtime {
	t.Helper()
	rt, err := config.NewRuntime(d)
	require.NoError(t, err)
	return rt
}

func TestRunner_OfferReplacesPending(t *testing.T) {
	s, _ := newSession(t, unsmoothed())
	r := NewRunner(s, newRuntime(t, unsmoothed()), nil)

	assert.True(t, r.Offer(landmark.NeutralFace(at(0))))
	assert.False(t, r.Offer(landmark.NeutralFace(at(33))))
	assert.False(t, r.Offer(landmark.NeutralFace(at(66))))
	assert.Equal(t, uint64(2), r.Superseded())
	assert.Same(t, s, r.Session())
}

func TestRunner_ProcessesLatestOnly(t *testing.T) {
	s, _ := newSession(t, unsmoothed())
	var got results
	r := NewRunner(s, newRuntime(t, unsmoothed()), got.add)

	// Queue several frames before the loop starts: only the newest survives.
	r.Offer(landmark.NeutralFace(at(0)))
	r.Offer(landmark.NeutralFace(at(33)))
	r.Offer(landmark.NeutralFace(at(66)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, time.Millisecond)

	got.mu.Lock()
	assert.Equal(t, at(66).UnixMilli(), got.res[0].Timestamp)
	got.mu.Unlock()

	r.Offer(landmark.NeutralFace(at(100)))
	require.Eventually(t, func() bool { return got.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunner_ReadsSnapshotPerFrame(t *testing.T) {
	s, em := newSession(t, unsmoothed())
	rt := newRuntime(t, unsmoothed())
	var got results
	r := NewRunner(s, rt, got.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	d := rt.Snapshot()
	d.DebounceFrames = 1
	require.NoError(t, rt.Update(d))

	r.Offer(landmark.ClosedEyesFace(at(0)))
	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, time.Millisecond)

	assert.Len(t, em.kinds(), 1, "debounce of one fires on the first closed frame")
}

func TestRunner_StopsOnClosedSession(t *testing.T) {
	s, _ := newSession(t, unsmoothed())
	s.Close()

	var got results
	r := NewRunner(s, newRuntime(t, unsmoothed()), got.add)
	r.Offer(landmark.NeutralFace(at(0)))

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	require.Len(t, got.errs, 1)
	assert.True(t, errors.Is(got.errs[0], ErrClosed))
}

func TestRunner_FrameErrorsDoNotStop(t *testing.T) {
	s, _ := newSession(t, unsmoothed())
	var got results
	r := NewRunner(s, newRuntime(t, unsmoothed()), got.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Offer(landmark.NeutralFace(at(100)))
	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, time.Millisecond)

	r.Offer(landmark.NeutralFace(at(50)))
	require.Eventually(t, func() bool { return got.count() == 2 }, time.Second, time.Millisecond)

	r.Offer(landmark.NeutralFace(at(200)))
	require.Eventually(t, func() bool { return got.count() == 3 }, time.Second, time.Millisecond)

	got.mu.Lock()
	defer got.mu.Unlock()
	require.Len(t, got.errs, 1)
	assert.True(t, IsFrameError(got.errs[0]))
	assert.Len(t, got.res, 2)
}

type fakeRecorder struct {
	mu      sync.Mutex
	started []Summary
	ended   []Summary
	err     error
}

func (f *fakeRecorder) SessionStarted(_ context.Context, s Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, s)
	return f.err
}

func (f *fakeRecorder) SessionEnded(_ context.Context, s Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, s)
	return f.err
}

func newManager(t *testing.T, rec Recorder) *Manager {
	t.Helper()
	return NewManager(ManagerOptions{
		Layout:   feature.DefaultLayout(),
		Runtime:  newRuntime(t, unsmoothed()),
		Emitter:  &fakeEmitter{},
		Recorder: rec,
		Logger:   zerolog.Nop(),
	})
}

func TestManager_Lifecycle(t *testing.T) {
	rec := &fakeRecorder{}
	m := newManager(t, rec)
	ctx := context.Background()

	a, err := m.Start(ctx, "ws")
	require.NoError(t, err)
	b, err := m.Start(ctx, "replay")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	got, ok := m.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	_, err = a.Tick(landmark.NeutralFace(at(0)), m.Runtime().Snapshot())
	require.NoError(t, err)

	active := m.Active()
	require.Len(t, active, 2)
	assert.Equal(t, a.ID(), active[0].ID)
	assert.Equal(t, 1, active[0].Frames)

	sum, err := m.End(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Frames)
	require.NotNil(t, sum.EndedAt)

	_, ok = m.Get(a.ID())
	assert.False(t, ok)

	_, err = m.End(ctx, a.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	m.CloseAll(ctx)
	assert.Empty(t, m.Active())

	assert.Len(t, rec.started, 2)
	assert.Len(t, rec.ended, 2)
	assert.Equal(t, "ws", rec.started[0].Source)
}

func TestManager_RecorderErrorsAreLogged(t *testing.T) {
	m := newManager(t, &fakeRecorder{err: errors.New("disk full")})

	s, err := m.Start(context.Background(), "ws")
	require.NoError(t, err)

	_, err = m.End(context.Background(), s.ID())
	assert.NoError(t, err)
}
