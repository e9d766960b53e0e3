package config

import (
	"os"
	"path/filepath"
)

// EditthreadPath returns the root directory for editthread data.
// It uses $EDITTHREAD_PATH if set, otherwise defaults to ~/.editthread.
func EditthreadPath() string {
	if v := os.Getenv("EDITTHREAD_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".editthread")
	}
	return filepath.Join(home, ".editthread")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(EditthreadPath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(EditthreadPath(), ".env")
}
