// Package heartbeat lets the CLI see whether a serve process is alive and
// what its worker is doing without going through the gateway.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultInterval is how often a Writer refreshes the file.
const DefaultInterval = 10 * time.Second

// Status is the liveness derived from a beat's age.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Worker describes the edit worker at the time of the beat.
type Worker struct {
	State   string `json:"state"`
	Running string `json:"running,omitempty"`
	Queued  int    `json:"queued"`
}

// Beat is the content of the heartbeat file.
type Beat struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr,omitempty"`
	StartedAt time.Time `json:"started_at"`
	WrittenAt time.Time `json:"written_at"`
	Worker    *Worker   `json:"worker,omitempty"`
}

// Uptime is the process age at the time of the beat.
func (b *Beat) Uptime() time.Duration {
	return b.WrittenAt.Sub(b.StartedAt).Truncate(time.Second)
}

// Source reports the worker view written into each beat.
type Source func() Worker

// Writer keeps a heartbeat file fresh while Run is active.
type Writer struct {
	Path     string
	Addr     string
	Interval time.Duration
	Source   Source // optional
}

// NewWriter returns a Writer refreshing path every DefaultInterval.
func NewWriter(path, addr string, source Source) *Writer {
	return &Writer{Path: path, Addr: addr, Interval: DefaultInterval, Source: source}
}

// Run writes a beat immediately and then every interval until ctx is done,
// then removes the file. Write failures are logged and retried on the next tick.
func (w *Writer) Run(ctx context.Context) error {
	started := time.Now()
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	beat := func() {
		if err := w.write(started, time.Now()); err != nil {
			slog.Warn("heartbeat write failed", "path", w.Path, "error", err)
		}
	}
	beat()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := os.Remove(w.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove heartbeat: %w", err)
			}
			return nil
		case <-ticker.C:
			beat()
		}
	}
}

func (w *Writer) write(started, now time.Time) error {
	b := Beat{
		PID:       os.Getpid(),
		Addr:      w.Addr,
		StartedAt: started,
		WrittenAt: now,
	}
	if w.Source != nil {
		wk := w.Source()
		b.Worker = &wk
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return err
	}
	tmp := w.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.Path)
}

// Read loads the heartbeat file. A missing file means StatusDead with no
// error; a beat older than maxAge is StatusStale.
func Read(path string, maxAge time.Duration) (Status, *Beat, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return StatusDead, nil, nil
	}
	if err != nil {
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var b Beat
	if err := json.Unmarshal(data, &b); err != nil {
		return StatusDead, nil, fmt.Errorf("decode heartbeat: %w", err)
	}
	if time.Since(b.WrittenAt) > maxAge {
		return StatusStale, &b, nil
	}
	return StatusAlive, &b, nil
}
