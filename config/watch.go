package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file on write/create events and invokes the
// callback with the new value. Events closer than Cooldown are coalesced.
type Watcher struct {
	Path     string
	Cooldown time.Duration
	Logger   *zap.Logger

	// load is swapped in tests.
	load func(string) (AppConfig, error)
}

// Start blocks until ctx is cancelled. The parent directory is watched so that
// editors replacing the file via rename are still observed.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}
	load := w.load
	if load == nil {
		load = LoadWithEnvOverrides
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.Path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config dir %s: %w", dir, err)
	}
	target := filepath.Clean(w.Path)

	var lastReload time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if time.Since(lastReload) < w.Cooldown {
				continue
			}
			cfg, err := load(w.Path)
			if err != nil {
				log.Warn("config reload failed", zap.String("path", w.Path), zap.Error(err))
				continue
			}
			lastReload = time.Now()
			log.Info("config reloaded", zap.String("path", w.Path))
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
