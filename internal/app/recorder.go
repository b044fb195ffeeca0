package app

import (
	"context"

	"github.com/ayusman/facecue/internal/session"
	"github.com/ayusman/facecue/internal/store"
)

// storeRecorder persists session summaries in the sessions table.
type storeRecorder struct {
	sessions *store.SessionRepository
}

func (r *storeRecorder) SessionStarted(ctx context.Context, s session.Summary) error {
	return r.sessions.Create(ctx, toStoreSession(s))
}

func (r *storeRecorder) SessionEnded(ctx context.Context, s session.Summary) error {
	return r.sessions.Update(ctx, toStoreSession(s))
}

func toStoreSession(s session.Summary) *store.Session {
	return &store.Session{
		ID:         s.ID,
		Source:     s.Source,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		Frames:     s.Frames,
		Skipped:    s.Skipped,
		Blinks:     s.Blinks,
		MouthOpens: s.MouthOpens,
		HeadTurns:  s.HeadTurns,
	}
}
