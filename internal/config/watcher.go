package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/registrydash/internal/logfields"
)

// ApplyFunc receives every successfully reloaded configuration.
type ApplyFunc func(ctx context.Context, cfg *Config) error

// Watcher reloads the configuration file when it changes on disk.
type Watcher struct {
	path     string
	apply    ApplyFunc
	debounce time.Duration
	log      *slog.Logger

	watcher  *fsnotify.Watcher
	reload   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle. Default 2s.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher prepares a watcher for path. Nothing is watched until Start.
func NewWatcher(path string, apply ApplyFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		apply:    apply,
		debounce: 2 * time.Second,
		log:      slog.Default(),
		watcher:  fw,
		reload:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the directory holding the file; editors often replace files
// by rename, which a file watch would miss.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	w.log.Info("Starting configuration watcher", logfields.Path(w.path))

	w.wg.Add(2)
	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	return nil
}

// Stop ends both loops and closes the file watcher. Safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if err := w.watcher.Close(); err != nil {
			w.log.Error("Error closing file watcher", logfields.Error(err))
		}
		w.wg.Wait()
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	name := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				w.log.Debug("Config file change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				w.trigger()
			case event.Has(fsnotify.Remove):
				w.log.Warn("Config file removed", logfields.Path(event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("Config watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	defer w.wg.Done()
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.reload:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.Reload(ctx); err != nil {
				w.log.Error("Failed to reload configuration", logfields.Error(err))
			}
		}
	}
}

func (w *Watcher) trigger() {
	select {
	case w.reload <- struct{}{}:
	default:
	}
}

// Reload loads the file and hands it to the apply function. A file that fails
// to load or validate is skipped and the running configuration stays.
func (w *Watcher) Reload(ctx context.Context) error {
	w.log.Info("Reloading configuration", logfields.Path(w.path))
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	if err := w.apply(ctx, cfg); err != nil {
		return fmt.Errorf("failed to apply configuration: %w", err)
	}
	w.log.Info("Configuration reloaded")
	return nil
}
