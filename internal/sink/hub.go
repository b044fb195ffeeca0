package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayusman/facecue/internal/gesture"
)

// Broadcaster pushes a message to every connected client.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// HubSink echoes each event record to websocket subscribers.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a HubSink.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

// Name implements Sink.
func (s *HubSink) Name() string { return "hub" }

// Write implements Sink.
func (s *HubSink) Write(_ context.Context, ev gesture.Event) error {
	data, err := json.Marshal(ev.Record())
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	s.hub.Broadcast(data)
	return nil
}
