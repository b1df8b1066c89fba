package model

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultReloadDebounce collapses the burst of events editors emit on save.
const defaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads a Registry whenever its JSON file changes on disk.
// An invalid file is logged and ignored; the registry keeps its last good
// routing tables.
type Watcher struct {
	path     string
	registry *Registry
	logger   *slog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	// onReload is called after each reload attempt. Tests use it to sync.
	onReload func(error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook registers a callback invoked after every reload attempt.
func WithReloadHook(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher watches path and applies changes to registry. The parent
// directory is watched so that atomic rename-on-save is seen.
func NewWatcher(path string, registry *Registry, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve registry path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		registry: registry,
		logger:   slog.Default(),
		debounce: defaultReloadDebounce,
		watcher:  fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Model registry watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Warn("Model registry reload rejected", "path", w.path, "error", err)
	} else {
		w.registry.Replace(next)
		w.logger.Info("Model registry reloaded",
			"path", w.path,
			"endpoints", len(next.ListEndpoints()))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
