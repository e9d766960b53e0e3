// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dohr-michael/editthread/internal/config"
)

var level = new(slog.LevelVar)

// Setup installs the default slog logger described by cfg. debug forces the
// debug level. The returned closer flushes the log file, if any.
func Setup(cfg config.LogConfig, debug bool) (io.Closer, error) {
	level.Set(ParseLevel(cfg.Level))
	if debug {
		level.Set(slog.LevelDebug)
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(cfg.MaxSizeMB, 1),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w, closer = lj, lj
	}

	slog.SetDefault(slog.New(NewHandler(w, cfg.Format)))
	return closer, nil
}

// NewHandler builds a text or JSON handler bound to the shared level.
func NewHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetDebug switches the shared level between debug and lvl at runtime.
func SetDebug(on bool, lvl string) {
	if on {
		level.Set(slog.LevelDebug)
		return
	}
	level.Set(ParseLevel(lvl))
}

// Level returns the current shared level.
func Level() slog.Level {
	return level.Level()
}

// ParseLevel maps a config string to a level; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
