package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultDebounceWindow is how long the file must stay quiet before a reload.
const DefaultDebounceWindow = 200 * time.Millisecond

var _ ports.ConfigWatcher = (*Watcher)(nil)

// Watcher reloads the settings file through a ConfigLoader whenever it is
// written or replaced.
type Watcher struct {
	loader ports.ConfigLoader
	log    ports.Logger
	window time.Duration
}

// New creates a Watcher.
func New(loader ports.ConfigLoader, log ports.Logger, window time.Duration) *Watcher {
	return &Watcher{loader: loader, log: log, window: window}
}

// Watch blocks until ctx is done. The parent directory is watched so that
// editors replacing the file by rename are noticed. Settings that fail to load
// are logged and skipped.
func (w *Watcher) Watch(ctx context.Context, path string, onChange func(domain.Settings)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to resolve config path"), "path", path)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return zerr.Wrap(err, "failed to create file watcher")
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to watch config directory"), "path", filepath.Dir(abs))
	}

	d := NewDebouncer(w.window, func([]string) {
		settings, err := w.loader.Load(abs)
		if err != nil {
			w.log.Error(zerr.Wrap(err, "config reload skipped"))
			return
		}
		w.log.Info("config reloaded", "path", abs)
		onChange(settings)
	})
	defer d.Stop()

	const relevant = fsnotify.Write | fsnotify.Create
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || event.Op&relevant == 0 {
				continue
			}
			d.Add(event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "error", err.Error())
		}
	}
}
