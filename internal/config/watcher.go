package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"prsheet/internal/structures"
)

// Watcher reloads the config file when it changes on disk. A reload that
// fails to parse or validate is logged and the previous config stays active.
type Watcher struct {
	path     string
	logger   *zap.Logger
	debounce time.Duration
	onReload func(structures.Config)

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for path. onReload runs on the watcher's
// goroutine with each valid new config.
func NewWatcher(path string, logger *zap.Logger, onReload func(structures.Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		path:     abs,
		logger:   logger,
		debounce: 2 * time.Second,
		onReload: onReload,
		watcher:  fw,
	}, nil
}

// Start watches the config directory until ctx is done or Close is called.
// The directory is watched rather than the file so editors that replace the
// file on save are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	w.logger.Info("Watching configuration", zap.String("path", w.path))

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// SetDebounce sets how long writes must settle before a reload. Call it
// before Start.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	name := filepath.Base(w.path)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		w.logger.Error("Config reload rejected, keeping previous config", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("Configuration reloaded", zap.String("path", w.path))
	w.onReload(cfg)
}
