package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestReloader_ReloadReexpandsTemplates(t *testing.T) {
	t.Cleanup(func() { os.Unsetenv("EDIT_DB_NAME") })
	dir := t.TempDir()
	dotenvPath := filepath.Join(dir, ".env")
	configPath := filepath.Join(dir, "config.jsonc")

	writeFile(t, dotenvPath, "EDIT_DB_NAME=first\n")
	writeFile(t, configPath, `{
		// storage follows the env
		"storage": {"path": "${{ .Env.EDIT_DB_NAME }}.db"},
		"worker": {"throttle": "3s"}
	}`)

	initial := &Config{}
	r := NewReloader(configPath, dotenvPath, initial)

	var prevs, nexts []*Config
	r.OnReload(func(prev, next *Config) {
		prevs = append(prevs, prev)
		nexts = append(nexts, next)
	})

	writeFile(t, dotenvPath, "EDIT_DB_NAME=second\n")
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if len(nexts) != 1 {
		t.Fatalf("listener calls = %d, want 1", len(nexts))
	}
	if prevs[0] != initial {
		t.Error("listener prev is not the replaced config")
	}
	cur := r.Current()
	if nexts[0] != cur {
		t.Error("listener next is not the current config")
	}
	if cur.Storage.Path != "second.db" {
		t.Errorf("Storage.Path = %q, want second.db", cur.Storage.Path)
	}
	if cur.Worker.Throttle.Duration() != 3*time.Second {
		t.Errorf("Worker.Throttle = %v, want 3s", cur.Worker.Throttle.Duration())
	}
}

func TestReloader_MissingDotenvIsFine(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	writeFile(t, configPath, `{"gateway": {"port": 18500}}`)

	r := NewReloader(configPath, filepath.Join(dir, ".env"), &Config{})
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if r.Current().Gateway.Port != 18500 {
		t.Errorf("port = %d, want 18500", r.Current().Gateway.Port)
	}
}

func TestReloader_FailedReloadKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	writeFile(t, configPath, `{"gateway": {"port": -1}}`)

	initial := &Config{}
	r := NewReloader(configPath, filepath.Join(dir, ".env"), initial)
	called := false
	r.OnReload(func(_, _ *Config) { called = true })

	if err := r.Reload(); err == nil {
		t.Fatal("expected error for invalid config")
	}
	if r.Current() != initial {
		t.Error("invalid config replaced the current one")
	}
	if called {
		t.Error("listener called for failed reload")
	}
}

func TestReloader_Watch(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	writeFile(t, configPath, `{"debug": true}`)

	r := NewReloader(configPath, filepath.Join(dir, ".env"), &Config{})
	reloaded := make(chan bool, 1)
	r.OnReload(func(_, next *Config) { reloaded <- next.Debug })

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		r.Watch(ctx, sig)
		close(done)
	}()

	sig <- os.Interrupt
	select {
	case debug := <-reloaded:
		if !debug {
			t.Error("reloaded config lost debug flag")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after signal")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestRestartRequired(t *testing.T) {
	base := Config{}
	base.Gateway.Port = 18420
	base.Worker.QueueSize = 16

	live := base
	live.Debug = true
	live.Log.Level = "debug"
	if got := RestartRequired(&base, &live); len(got) != 0 {
		t.Errorf("live-only change flagged: %v", got)
	}

	moved := base
	moved.Gateway.Port = 9000
	moved.Worker.QueueSize = 32
	got := RestartRequired(&base, &moved)
	if !slices.Equal(got, []string{"gateway", "worker"}) {
		t.Errorf("RestartRequired = %v, want [gateway worker]", got)
	}

	if RestartRequired(nil, &base) != nil {
		t.Error("nil prev should report nothing")
	}
}
