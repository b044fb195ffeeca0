// Package app wires configuration, storage, sinks, sessions and the server
// into a running facecue instance.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecue/internal/config"
	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/server"
	"github.com/ayusman/facecue/internal/session"
	"github.com/ayusman/facecue/internal/sink"
	"github.com/ayusman/facecue/internal/store"
)

// settingDetection is the settings key holding detection overrides saved
// through the API.
const settingDetection = "detection"

// App is the assembled application.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	store   *store.Store
	runtime *config.Runtime
	emitter *sink.Emitter
	hub     *server.Hub
	manager *session.Manager
	server  *server.Server

	enabled atomic.Bool

	mu      sync.Mutex
	closers []io.Closer
	watcher *config.Watcher
}

// New opens the store, restores persisted detection settings and registers
// every configured sink.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &App{
		cfg:   cfg,
		log:   log,
		store: st,
	}
	a.enabled.Store(true)

	detection := a.restoreDetection(ctx, cfg.Detection)
	a.runtime, err = config.NewRuntime(detection)
	if err != nil {
		st.Close()
		return nil, err
	}

	a.emitter = sink.NewEmitter(log, cfg.Sinks.QueueSize)
	a.hub = server.NewHub(log)
	if err := a.registerSinks(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.manager = session.NewManager(session.ManagerOptions{
		Layout:   cfg.Layout,
		Runtime:  a.runtime,
		Emitter:  a.emitter,
		Recorder: &storeRecorder{sessions: st.Sessions()},
		Logger:   log,
	})

	a.server = server.New(server.Config{
		StaticDir: cfg.Server.StaticDir,
		Store:     st,
		Manager:   a.manager,
		Hub:       a.hub,
		MaxFPS:    cfg.Server.MaxFPS,
		Enabled:   a.IsEnabled,
		Persist:   a.persistDetection,
		Logger:    log,
	})

	return a, nil
}

func (a *App) registerSinks(ctx context.Context) error {
	a.emitter.Register(sink.NewMetricsSink())
	a.emitter.Register(sink.NewStoreSink(a.store.Events()))
	a.emitter.Register(sink.NewHubSink(a.hub))

	if path := a.cfg.Sinks.EventLog; path != "" {
		ls := sink.NewLogSink(path)
		a.closers = append(a.closers, ls)
		a.emitter.Register(ls)
	}

	if rc := a.cfg.Sinks.Redis; rc.Addr != "" {
		client, err := sink.DialRedis(ctx, rc)
		if err != nil {
			// Events still reach the other sinks.
			a.log.Warn().Err(err).Str("addr", rc.Addr).Msg("redis unavailable, sink disabled")
		} else {
			a.closers = append(a.closers, client)
			a.emitter.Register(sink.NewRedisSink(client, rc.Channel))
		}
	}

	for _, h := range a.cfg.Sinks.Hooks {
		kinds := make([]gesture.Kind, 0, len(h.Types))
		for _, t := range h.Types {
			k := gesture.Kind(t)
			if !k.Valid() {
				return fmt.Errorf("%w: hook %q: unknown event type %q", config.ErrInvalidConfig, h.Name, t)
			}
			kinds = append(kinds, k)
		}
		a.emitter.Register(sink.Filter(sink.NewExecSink(h.Name, h.Command, h.Args, h.Timeout), kinds...))
	}
	return nil
}

// restoreDetection overlays saved API overrides on the file settings. Broken
// or invalid overrides are ignored.
func (a *App) restoreDetection(ctx context.Context, base config.Detection) config.Detection {
	raw, err := a.store.Settings().Get(ctx, settingDetection)
	if errors.Is(err, store.ErrNotFound) {
		return base
	}
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to read saved detection settings")
		return base
	}

	d := base
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		a.log.Warn().Err(err).Msg("ignoring unreadable saved detection settings")
		return base
	}
	if err := d.Validate(); err != nil {
		a.log.Warn().Err(err).Msg("ignoring invalid saved detection settings")
		return base
	}
	a.log.Info().Msg("restored saved detection settings")
	return d
}

func (a *App) persistDetection(ctx context.Context, d config.Detection) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return a.store.Settings().Set(ctx, settingDetection, string(data))
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	return a.server.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// Watch reloads detection settings whenever the config file at path changes.
func (a *App) Watch(path string) error {
	w, err := config.Watch(path, a.runtime, a.log)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.watcher = w
	a.mu.Unlock()
	return nil
}

// OnEvent registers fn as an additional event consumer.
func (a *App) OnEvent(name string, fn func(gesture.Event)) {
	a.emitter.Register(sink.Func(name, func(_ context.Context, ev gesture.Event) error {
		fn(ev)
		return nil
	}))
}

// SetEnabled gates landmark ingestion.
func (a *App) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)
	a.log.Info().Bool("enabled", enabled).Msg("detection toggled")
}

// IsEnabled returns whether landmark ingestion is currently enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// Runtime returns the live detection settings.
func (a *App) Runtime() *config.Runtime { return a.runtime }

// Store returns the application store.
func (a *App) Store() *store.Store { return a.store }

// Manager returns the session manager.
func (a *App) Manager() *session.Manager { return a.manager }

// Handler returns the HTTP handler.
func (a *App) Handler() *server.Server { return a.server }

// SinkStats returns per-sink delivery counters.
func (a *App) SinkStats() []sink.Stats { return a.emitter.Stats() }

// Close ends open sessions, drains the sinks and closes the store.
func (a *App) Close() error {
	a.mu.Lock()
	w := a.watcher
	a.watcher = nil
	a.mu.Unlock()
	if w != nil {
		w.Close()
	}

	if a.server != nil {
		a.server.Close()
	}
	if a.manager != nil {
		a.manager.CloseAll(context.Background())
	}
	if a.emitter != nil {
		a.emitter.Close()
	}

	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
