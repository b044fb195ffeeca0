package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file on change and pushes the detection section
// into a Runtime. Other sections need a restart.
type Watcher struct {
	path    string
	runtime *Runtime
	log     zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// Watch starts watching path. The directory is watched rather than the file so
// that editors which replace the file on save are handled.
func Watch(path string, rt *Runtime, log zerolog.Logger) (*Watcher, error) {
	path = expandPath(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		runtime: rt,
		log:     log.With().Str("component", "config").Logger(),
		watcher: fw,
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := read(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("config reload rejected, keeping current detection settings")
		return
	}
	if err := w.runtime.Update(cfg.Detection); err != nil {
		w.log.Warn().Err(err).Msg("detection settings rejected")
		return
	}
	w.log.Info().Interface("detection", cfg.Detection).Msg("detection settings reloaded")
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
