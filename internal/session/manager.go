package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayusman/facecue/internal/config"
	"github.com/ayusman/facecue/internal/feature"
	"github.com/ayusman/facecue/internal/metrics"
)

// Recorder persists session summaries.
type Recorder interface {
	SessionStarted(ctx context.Context, s Summary) error
	SessionEnded(ctx context.Context, s Summary) error
}

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	Layout   feature.Layout
	Runtime  *config.Runtime
	Emitter  Emitter
	Recorder Recorder
	Logger   zerolog.Logger
}

// Manager creates and tracks independent sessions.
type Manager struct {
	opts ManagerOptions
	log  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "sessions").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Runtime returns the shared detection settings.
func (m *Manager) Runtime() *config.Runtime {
	return m.opts.Runtime
}

// Start creates a session seeded with the current settings snapshot.
func (m *Manager) Start(ctx context.Context, source string) (*Session, error) {
	id := uuid.NewString()

	s, err := New(id, Options{
		Source:    source,
		Layout:    m.opts.Layout,
		Detection: m.opts.Runtime.Snapshot(),
		Emitter:   m.opts.Emitter,
		Logger:    m.opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.SessionStarted(ctx, s.Summary()); err != nil {
			m.log.Warn().Err(err).Str("session", id).Msg("failed to record session start")
		}
	}

	m.log.Info().Str("session", id).Str("source", source).Msg("session started")
	return s, nil
}

// Get returns an active session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// End closes a session and records its summary. The caller must have stopped
// feeding frames to it.
func (m *Manager) End(ctx context.Context, id string) (Summary, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.ActiveSessions.Dec()

	sum := s.Close()
	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.SessionEnded(ctx, sum); err != nil {
			m.log.Warn().Err(err).Str("session", id).Msg("failed to record session end")
		}
	}

	m.log.Info().
		Str("session", id).
		Int("frames", sum.Frames).
		Int("skipped", sum.Skipped).
		Int("blinks", sum.Blinks).
		Msg("session ended")
	return sum, nil
}

// Active returns summaries of all active sessions, oldest first.
func (m *Manager) Active() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// CloseAll ends every active session.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.End(ctx, id)
	}
}
