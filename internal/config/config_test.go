package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDetection_Valid(t *testing.T) {
	d := DefaultDetection()
	require.NoError(t, d.Validate())

	assert.Equal(t, 0.22, d.EARThreshold)
	assert.Equal(t, 5, d.SmoothingWindow)
	assert.Equal(t, 2, d.DebounceFrames)
	assert.Equal(t, time.Minute, d.RateWindow)
	assert.Equal(t, "average", d.BlinkPolicy)
}

func TestDetection_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Detection)
	}{
		{"ear zero", func(d *Detection) { d.EARThreshold = 0 }},
		{"ear one", func(d *Detection) { d.EARThreshold = 1 }},
		{"mar negative", func(d *Detection) { d.MARThreshold = -0.1 }},
		{"window zero", func(d *Detection) { d.SmoothingWindow = 0 }},
		{"debounce zero", func(d *Detection) { d.DebounceFrames = 0 }},
		{"turn left zero", func(d *Detection) { d.TurnLeftThreshold = 0 }},
		{"turn right negative", func(d *Detection) { d.TurnRightThreshold = -1 }},
		{"emit below classify", func(d *Detection) { d.TurnEmitThreshold = 0.10 }},
		{"rate window zero", func(d *Detection) { d.RateWindow = 0 }},
		{"unknown policy", func(d *Detection) { d.BlinkPolicy = "wink" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DefaultDetection()
			tt.mutate(&d)
			err := d.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDetection_ValidateNamesField(t *testing.T) {
	d := DefaultDetection()
	d.DebounceFrames = 0

	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debounce_frames")
}

func TestDetection_Params(t *testing.T) {
	p := DefaultDetection().Params()

	assert.Equal(t, 0.22, p.EARThreshold)
	assert.Equal(t, 0.30, p.MARThreshold)
	assert.Equal(t, 2, p.DebounceFrames)
	assert.Equal(t, 0.12, p.TurnLeft)
	assert.Equal(t, 0.12, p.TurnRight)
	assert.Equal(t, 0.35, p.TurnEmit)
}

func TestDetection_JSON(t *testing.T) {
	data, err := json.Marshal(DefaultDetection())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rate_window":"1m0s"`)
	assert.Contains(t, string(data), `"ear_threshold":0.22`)

	var d Detection
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, DefaultDetection(), d)

	require.NoError(t, json.Unmarshal([]byte(`{"rate_window": 30}`), &d))
	assert.Equal(t, 30*time.Second, d.RateWindow)
	assert.Equal(t, 0.22, d.EARThreshold, "absent fields keep their value")

	assert.Error(t, json.Unmarshal([]byte(`{"rate_window": "soon"}`), &d))
	assert.Error(t, json.Unmarshal([]byte(`{"rate_window": true}`), &d))
}

func TestRuntime_UpdateKeepsPriorOnInvalid(t *testing.T) {
	rt, err := NewRuntime(DefaultDetection())
	require.NoError(t, err)

	bad := DefaultDetection()
	bad.SmoothingWindow = 0
	err = rt.Update(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 5, rt.Snapshot().SmoothingWindow)

	good := DefaultDetection()
	good.SmoothingWindow = 9
	require.NoError(t, rt.Update(good))
	assert.Equal(t, 9, rt.Snapshot().SmoothingWindow)
}

func TestRuntime_Patch(t *testing.T) {
	rt, err := NewRuntime(DefaultDetection())
	require.NoError(t, err)

	var seen []Detection
	rt.Subscribe(func(d Detection) { seen = append(seen, d) })

	d, err := rt.Patch([]byte(`{"ear_threshold": 0.25, "blink_policy": "per_eye", "rate_window": "30s"}`))
	require.NoError(t, err)
	assert.Equal(t, 0.25, d.EARThreshold)
	assert.Equal(t, "per_eye", d.BlinkPolicy)
	assert.Equal(t, 30*time.Second, d.RateWindow)
	assert.Equal(t, 0.30, d.MARThreshold)
	assert.Equal(t, d, rt.Snapshot())
	require.Len(t, seen, 1)

	_, err = rt.Patch([]byte(`{"debounce_frames": 0}`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 2, rt.Snapshot().DebounceFrames)

	_, err = rt.Patch([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Len(t, seen, 1)
}

func TestRuntime_ConcurrentPatchesAllApply(t *testing.T) {
	rt, err := NewRuntime(DefaultDetection())
	require.NoError(t, err)

	patches := []string{
		`{"ear_threshold": 0.2}`,
		`{"mar_threshold": 0.4}`,
		`{"smoothing_window": 7}`,
		`{"debounce_frames": 4}`,
		`{"blink_policy": "per_eye"}`,
		`{"rate_window": "10s"}`,
	}

	var wg sync.WaitGroup
	for _, p := range patches {
		wg.Add(1)
		go func(body string) {
			defer wg.Done()
			_, err := rt.Patch([]byte(body))
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	got := rt.Snapshot()
	assert.Equal(t, 0.2, got.EARThreshold)
	assert.Equal(t, 0.4, got.MARThreshold)
	assert.Equal(t, 7, got.SmoothingWindow)
	assert.Equal(t, 4, got.DebounceFrames)
	assert.Equal(t, "per_eye", got.BlinkPolicy)
	assert.Equal(t, 10*time.Second, got.RateWindow)
}

func TestNewRuntime_RejectsInvalid(t *testing.T) {
	d := DefaultDetection()
	d.EARThreshold = 2
	_, err := NewRuntime(d)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, DefaultDetection(), cfg.Detection)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Sinks.QueueSize)
	assert.Equal(t, Default().Layout, cfg.Layout)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  addr: ":9000"
detection:
  ear_threshold: 0.2
  rate_window: 30s
  blink_policy: per_eye
sinks:
  hooks:
    - name: notify
      command: /bin/cat
      types: [blink]
      timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 30.0, cfg.Server.MaxFPS, "unset keys keep defaults")
	assert.Equal(t, 0.2, cfg.Detection.EARThreshold)
	assert.Equal(t, 30*time.Second, cfg.Detection.RateWindow)
	assert.Equal(t, "per_eye", cfg.Detection.BlinkPolicy)
	require.Len(t, cfg.Sinks.Hooks, 1)
	assert.Equal(t, "/bin/cat", cfg.Sinks.Hooks[0].Command)
	assert.Equal(t, []string{"blink"}, cfg.Sinks.Hooks[0].Types)
	assert.Equal(t, 2*time.Second, cfg.Sinks.Hooks[0].Timeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("FACECUE_SERVER_ADDR", ":7777")
	t.Setenv("FACECUE_DETECTION_DEBOUNCE_FRAMES", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Detection.DebounceFrames)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  smoothing_window: 0\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("FACECUE_STORE_PATH=/tmp/from-dotenv.db\n"), 0644))

	// Register cleanup for the variable godotenv is about to set.
	t.Setenv("FACECUE_STORE_PATH", "")
	require.NoError(t, os.Unsetenv("FACECUE_STORE_PATH"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envPath))

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.Store.Path)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	cfg.Sinks.Hooks = []HookConfig{{Name: "empty"}}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.Layout.Nose = nil
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.Sinks.QueueSize = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestWatch_ReloadsDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Default().SaveToPath(path))

	rt, err := NewRuntime(DefaultDetection())
	require.NoError(t, err)

	w, err := Watch(path, rt, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	cfg := Default()
	cfg.Detection.DebounceFrames = 6
	require.NoError(t, cfg.SaveToPath(path))

	require.Eventually(t, func() bool {
		return rt.Snapshot().DebounceFrames == 6
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatch_InvalidKeepsPrior(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Default().SaveToPath(path))

	rt, err := NewRuntime(DefaultDetection())
	require.NoError(t, err)

	w, err := Watch(path, rt, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("detection:\n  debounce_frames: 0\n"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, rt.Snapshot().DebounceFrames)
}
