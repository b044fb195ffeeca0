package sink

import (
	"context"

	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/store"
)

// EventCreator persists event rows. *store.EventRepository satisfies it.
type EventCreator interface {
	Create(ctx context.Context, e *store.Event) error
}

// StoreSink persists every event as a flat row.
type StoreSink struct {
	repo EventCreator
}

// NewStoreSink creates a StoreSink.
func NewStoreSink(repo EventCreator) *StoreSink {
	return &StoreSink{repo: repo}
}

// Name implements Sink.
func (s *StoreSink) Name() string { return "store" }

// Write implements Sink.
func (s *StoreSink) Write(ctx context.Context, ev gesture.Event) error {
	return s.repo.Create(ctx, store.EventFromRecord(ev.Record()))
}
