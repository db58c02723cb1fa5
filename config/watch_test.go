package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherStopsOnCancel(t *testing.T) {
	w := Watcher{Path: filepath.Join(t.TempDir(), "cfg.yaml")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately
	if err := w.Start(ctx, nil); err == nil {
		t.Fatalf("expected context cancellation")
	}
}

func TestWatcherFailsOnMissingDir(t *testing.T) {
	w := Watcher{Path: filepath.Join(t.TempDir(), "nope", "cfg.yaml")}
	if err := w.Start(context.Background(), nil); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")

	w := Watcher{Path: path}
	w.load = func(string) (AppConfig, error) {
		cfg := Default()
		cfg.Log.Level = "debug"
		return cfg, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan AppConfig, 1)
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case ch <- cfg:
			default:
			}
		})
	}()

	// keep writing until the watcher is registered and reports the change
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Log.Level != "debug" {
				t.Fatalf("unexpected config %+v", cfg.Log)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("env: prod\n"), 0o644); err != nil {
				t.Fatalf("rewrite config: %v", err)
			}
		case <-deadline:
			t.Fatalf("expected update callback")
		}
	}
}
