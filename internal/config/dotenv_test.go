package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDotenv(t *testing.T) {
	src := `# world database
EDIT_DB=/var/lib/edit.db
export EDIT_PORT=18420

QUOTED="keeps # hash"
SINGLE='single quoted'
TRAILING=plain value # comment
  SPACED = padded
EMPTY=
`
	got, err := parseDotenv(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parseDotenv: %v", err)
	}
	want := [][2]string{
		{"EDIT_DB", "/var/lib/edit.db"},
		{"EDIT_PORT", "18420"},
		{"QUOTED", "keeps # hash"},
		{"SINGLE", "single quoted"},
		{"TRAILING", "plain value"},
		{"SPACED", "padded"},
		{"EMPTY", ""},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d vars, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("var %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseDotenv_Malformed(t *testing.T) {
	for _, src := range []string{"NO_EQUALS\n", "OK=1\n=value\n", "TWO WORDS=x\n"} {
		if _, err := parseDotenv(strings.NewReader(src)); err == nil {
			t.Errorf("parseDotenv(%q) accepted", src)
		}
	}
}

func TestLoadDotenv_KeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "EDIT_KEEP=from-file\nEDIT_NEW=added\n")
	t.Setenv("EDIT_KEEP", "from-env")
	t.Setenv("EDIT_NEW", "")
	os.Unsetenv("EDIT_NEW")

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("EDIT_KEEP"); got != "from-env" {
		t.Errorf("EDIT_KEEP = %q, want from-env", got)
	}
	if got := os.Getenv("EDIT_NEW"); got != "added" {
		t.Errorf("EDIT_NEW = %q, want added", got)
	}
}

func TestReloadDotenv_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "EDIT_RELOADED=fresh\n")
	t.Setenv("EDIT_RELOADED", "stale")

	if err := ReloadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("EDIT_RELOADED"); got != "fresh" {
		t.Errorf("EDIT_RELOADED = %q, want fresh", got)
	}
}

func TestLoadDotenv_MissingFile(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing file: %v", err)
	}
}

func TestLoadDotenv_ReportsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "GOOD=1\nbroken line\n")
	err := LoadDotenv(path)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("err = %v, want line 2 error", err)
	}
}
