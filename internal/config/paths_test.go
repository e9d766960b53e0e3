package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEditthreadPath_Default(t *testing.T) {
	t.Setenv("EDITTHREAD_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := EditthreadPath()
	want := filepath.Join(home, ".editthread")
	if got != want {
		t.Errorf("EditthreadPath() = %q, want %q", got, want)
	}
}

func TestEditthreadPath_EnvOverride(t *testing.T) {
	t.Setenv("EDITTHREAD_PATH", "/tmp/custom-editthread")

	if got := EditthreadPath(); got != "/tmp/custom-editthread" {
		t.Errorf("EditthreadPath() = %q, want %q", got, "/tmp/custom-editthread")
	}
}

func TestConfigAndDotenvPath(t *testing.T) {
	t.Setenv("EDITTHREAD_PATH", "/tmp/test-et")

	if got := ConfigPath(); got != "/tmp/test-et/config.jsonc" {
		t.Errorf("ConfigPath() = %q", got)
	}
	if got := DotenvPath(); got != "/tmp/test-et/.env" {
		t.Errorf("DotenvPath() = %q", got)
	}
}
