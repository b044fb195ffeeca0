package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/facecue/internal/feature"
	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/metrics"
	"github.com/ayusman/facecue/internal/store"
)

func blink() gesture.Event {
	return gesture.Event{
		Kind:      gesture.KindBlink,
		Session:   "sess-1",
		Metrics:   feature.Metrics{EARAvg: 0.1},
		Timestamp: time.Date(2024, 5, 1, 12, 30, 0, 250_000_000, time.UTC),
	}
}

func TestLogSink_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)

	require.NoError(t, s.Write(context.Background(), blink()))

	ev := blink()
	ev.Session = ""
	require.NoError(t, s.Write(context.Background(), ev))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `2024-05-01T12:30:00.250Z | sess-1 | {"type":"blink","ear":0.1,"timestamp":1714566600250,"session":"sess-1"}`, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2024-05-01T12:30:00.250Z | - | "))
	assert.NoError(t, s.Close())
}

func TestLogSink_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	s := NewLogSink(path)

	require.NoError(t, s.Write(context.Background(), blink()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `| sess-1 | {"type":"blink"`)
}

func TestStoreSink(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	s := NewStoreSink(st.Events())
	require.NoError(t, s.Write(context.Background(), blink()))

	events, err := st.Events().List(context.Background(), store.EventFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "blink", events[0].Type)
	require.NotNil(t, events[0].EAR)
	assert.Equal(t, 0.1, *events[0].EAR)
}

type fakeHub struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (h *fakeHub) Broadcast(msg []byte) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
}

func TestHubSink(t *testing.T) {
	hub := &fakeHub{}
	s := NewHubSink(hub)

	require.NoError(t, s.Write(context.Background(), blink()))
	require.Len(t, hub.msgs, 1)

	var rec gesture.Record
	require.NoError(t, json.Unmarshal(hub.msgs[0], &rec))
	assert.Equal(t, "blink", rec.Type)
	assert.Equal(t, "sess-1", rec.Session)
}

type fakePublisher struct {
	channel string
	msgs    [][]byte
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.channel = channel
	p.msgs = append(p.msgs, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func TestRedisSink(t *testing.T) {
	pub := &fakePublisher{}
	s := NewRedisSink(pub, "facecue:gestures")
	assert.Equal(t, "redis", s.Name())

	require.NoError(t, s.Write(context.Background(), blink()))
	assert.Equal(t, "facecue:gestures", pub.channel)
	require.Len(t, pub.msgs, 1)
	assert.Contains(t, string(pub.msgs[0]), `"type":"blink"`)

	pub.err = errors.New("connection refused")
	err := s.Write(context.Background(), blink())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExecSink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	t.Run("receives record on stdin", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "hook.json")
		s := NewExecSink("capture", "sh", []string{"-c", "cat > " + out}, time.Second)
		assert.Equal(t, "hook:capture", s.Name())

		require.NoError(t, s.Write(context.Background(), blink()))

		data, err := os.ReadFile(out)
		require.NoError(t, err)

		var rec gesture.Record
		require.NoError(t, json.Unmarshal(data, &rec))
		assert.Equal(t, "blink", rec.Type)
	})

	t.Run("reports stderr", func(t *testing.T) {
		s := NewExecSink("", "sh", []string{"-c", "echo boom >&2; exit 3"}, time.Second)
		err := s.Write(context.Background(), blink())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("times out", func(t *testing.T) {
		s := NewExecSink("sleepy", "sleep", []string{"5"}, 50*time.Millisecond)
		start := time.Now()
		err := s.Write(context.Background(), blink())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
		assert.Less(t, time.Since(start), 3*time.Second)
	})
}

func TestMetricsSink(t *testing.T) {
	counter := metrics.GestureEvents.WithLabelValues("mouth_close")
	before := testutil.ToFloat64(counter)

	s := NewMetricsSink()
	require.NoError(t, s.Write(context.Background(), gesture.Event{Kind: gesture.KindMouthClose}))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
