package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ayusman/facecue/internal/gesture"
)

// lineTime is ISO-8601 UTC with millisecond precision.
const lineTime = "2006-01-02T15:04:05.000Z07:00"

// LogSink appends one line per event: "<time> | <session> | <record JSON>".
type LogSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogSink writes to a size-rotated file at path.
func NewLogSink(path string) *LogSink {
	return &LogSink{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50,
			MaxBackups: 5,
			LocalTime:  true,
		},
	}
}

// NewWriterSink writes event lines to w.
func NewWriterSink(w io.Writer) *LogSink {
	return &LogSink{w: w}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "event_log" }

// Write implements Sink.
func (s *LogSink) Write(_ context.Context, ev gesture.Event) error {
	data, err := json.Marshal(ev.Record())
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	session := ev.Session
	if session == "" {
		session = "-"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = fmt.Fprintf(s.w, "%s | %s | %s\n", ev.Timestamp.UTC().Format(lineTime), session, data)
	return err
}

// Close closes the underlying writer when it is closable.
func (s *LogSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
