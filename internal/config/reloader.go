package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Listener is called after a successful reload with the replaced and the
// new config.
type Listener func(prev, next *Config)

// Reloader swaps the config atomically on reload and notifies listeners.
// A failed reload leaves the current config in place.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]
	mu         sync.Mutex // serializes reload
	listeners  []Listener
}

// NewReloader creates a Reloader with the given initial config.
func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{
		configPath: configPath,
		dotenvPath: dotenvPath,
	}
	r.current.Store(initial)
	return r
}

// Current returns the current config.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers fn.
func (r *Reloader) OnReload(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-reads the .env file (override mode), reloads the config with
// templates re-expanded, and notifies listeners.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}
	next, err := Load(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	prev := r.current.Swap(next)
	if fields := RestartRequired(prev, next); len(fields) > 0 {
		slog.Warn("config reloaded, some changes apply after restart", "fields", fields)
	} else {
		slog.Info("config reloaded")
	}

	for _, fn := range r.listeners {
		fn(prev, next)
	}
	return nil
}

// Watch reloads on every value received from signals until ctx is done.
// Reload errors are logged.
func (r *Reloader) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if err := r.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
			}
		}
	}
}

// RestartRequired lists the changed settings that are only read at startup.
// Debug, log level and the schedule are applied live.
func RestartRequired(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	check := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	check("gateway", prev.Gateway != next.Gateway)
	check("storage", prev.Storage != next.Storage)
	check("events.buffer_size", prev.Events.BufferSize != next.Events.BufferSize)
	check("worker", prev.Worker != next.Worker)
	check("log.file", prev.Log.File != next.Log.File || prev.Log.Format != next.Log.Format)
	return out
}
