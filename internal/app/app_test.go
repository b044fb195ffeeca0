package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/facecue/internal/config"
	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/landmark"
	"github.com/ayusman/facecue/internal/session"
	"github.com/ayusman/facecue/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.StaticDir = ""
	cfg.Store.Path = filepath.Join(dir, "facecue.db")
	cfg.Sinks.EventLog = filepath.Join(dir, "events.log")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	return a
}

// recording writes one JSON frame per line: a blink, a mouth open and close,
// and a left head turn.
func recording(t *testing.T) []byte {
	t.Helper()
	base := time.UnixMilli(1_700_000_000_000)
	at := func(i int) time.Time { return base.Add(time.Duration(i) * 33 * time.Millisecond) }

	var frames []landmark.Frame
	i := 0
	add := func(n int, build func(time.Time) landmark.Frame) {
		for j := 0; j < n; j++ {
			frames = append(frames, build(at(i)))
			i++
		}
	}
	add(5, landmark.NeutralFace)
	add(5, landmark.ClosedEyesFace)
	add(5, landmark.NeutralFace)
	add(5, landmark.OpenMouthFace)
	add(5, landmark.NeutralFace)
	add(5, func(ts time.Time) landmark.Frame { return landmark.TurnedFace(ts, 0.5) })

	var buf bytes.Buffer
	buf.WriteString("# synthetic recording\n")
	for _, f := range frames {
		data, err := json.Marshal(f)
		require.NoError(t, err)
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func TestApp_Replay(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	var (
		mu    sync.Mutex
		seen  []gesture.Kind
		ticks int
	)
	a.OnEvent("test", func(ev gesture.Event) {
		mu.Lock()
		seen = append(seen, ev.Kind)
		mu.Unlock()
	})

	sum, err := a.Replay(context.Background(), bytes.NewReader(recording(t)), func(res session.Result, err error) {
		if err == nil {
			ticks++
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 30, sum.Frames)
	assert.Equal(t, 30, ticks)
	assert.Equal(t, 1, sum.Blinks)
	assert.Equal(t, 1, sum.MouthOpens)
	assert.Positive(t, sum.HeadTurns)
	assert.Equal(t, 1, sum.BlinkRate)
	assert.NotNil(t, sum.EndedAt)
	assert.Empty(t, a.Manager().Active())

	stored, err := a.Store().Sessions().GetByID(context.Background(), sum.ID)
	require.NoError(t, err)
	assert.Equal(t, "replay", stored.Source)
	assert.Equal(t, 30, stored.Frames)
	assert.NotNil(t, stored.EndedAt)

	require.NoError(t, a.Close())

	mu.Lock()
	assert.Contains(t, seen, gesture.KindBlink)
	assert.Contains(t, seen, gesture.KindMouthOpen)
	assert.Contains(t, seen, gesture.KindMouthClose)
	assert.Contains(t, seen, gesture.KindHeadTurn)
	mu.Unlock()

	logData, err := os.ReadFile(cfg.Sinks.EventLog)
	require.NoError(t, err)
	assert.Contains(t, string(logData), `"type":"blink"`)
	assert.Contains(t, string(logData), " | "+sum.ID+" | ")

	st, err := store.New(cfg.Store.Path)
	require.NoError(t, err)
	defer st.Close()

	counts, err := st.Events().CountByType(context.Background(), store.EventFilter{SessionID: sum.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, counts["blink"])
	assert.Equal(t, 1, counts["mouth_open"])
	assert.Equal(t, 1, counts["mouth_close"])
}

func TestApp_ReplaySkipsMalformedLines(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	t.Cleanup(func() { a.Close() })

	frame, err := json.Marshal(landmark.NeutralFace(time.UnixMilli(1000)))
	require.NoError(t, err)
	input := "garbage\n" + string(frame) + "\n{\"timestamp\": 2000}\n"

	var errs []error
	sum, err := a.Replay(context.Background(), strings.NewReader(input), func(_ session.Result, err error) {
		if err != nil {
			errs = append(errs, err)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Frames)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], landmark.ErrMalformedFrame)
	assert.ErrorIs(t, errs[1], landmark.ErrEmptyFrame)
}

func TestApp_PersistedDetectionSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	srv := httptest.NewServer(a.Handler())
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/config", strings.NewReader(`{"ear_threshold": 0.18, "blink_policy": "per_eye"}`))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	srv.Close()

	assert.Equal(t, 0.18, a.Runtime().Snapshot().EARThreshold)
	require.NoError(t, a.Close())

	restarted := newTestApp(t, cfg)
	t.Cleanup(func() { restarted.Close() })

	got := restarted.Runtime().Snapshot()
	assert.Equal(t, 0.18, got.EARThreshold)
	assert.Equal(t, gesture.PolicyPerEye, got.BlinkPolicy)
	assert.Equal(t, cfg.Detection.DebounceFrames, got.DebounceFrames)
}

func TestApp_InvalidSavedDetectionIgnored(t *testing.T) {
	cfg := testConfig(t)

	st, err := store.New(cfg.Store.Path)
	require.NoError(t, err)
	require.NoError(t, st.Settings().Set(context.Background(), settingDetection, `{"smoothing_window": 0}`))
	require.NoError(t, st.Close())

	a := newTestApp(t, cfg)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, config.DefaultDetection(), a.Runtime().Snapshot())
}

func TestApp_HookWithUnknownType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.Hooks = []config.HookConfig{{Name: "wave", Command: "true", Types: []string{"wave"}}}

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestApp_UnreachableRedisIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.Redis.Addr = "127.0.0.1:1"

	a := newTestApp(t, cfg)
	t.Cleanup(func() { a.Close() })

	for _, s := range a.SinkStats() {
		assert.NotEqual(t, "redis", s.Name)
	}
}

func TestApp_SetEnabled(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	t.Cleanup(func() { a.Close() })

	assert.True(t, a.IsEnabled())
	a.SetEnabled(false)
	assert.False(t, a.IsEnabled())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var health map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, false, health["enabled"])
}
