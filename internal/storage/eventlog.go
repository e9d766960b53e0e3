package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dohr-michael/editthread/internal/events"
)

// ErrBadTaskID is returned for task ids that cannot name a log file.
var ErrBadTaskID = errors.New("invalid task id")

const globalLog = "global.jsonl"

// EventLogger appends bus events as JSON lines: task events to
// <dir>/<task_id>.jsonl, the rest to a size-rotated global.jsonl.
// Stats reports are not logged.
type EventLogger struct {
	dir         string
	unsubscribe func()

	mu       sync.Mutex
	global   *lumberjack.Logger
	taskID   string // task whose file is open
	taskFile *os.File
}

// NewEventLogger subscribes to every event on bus.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{
		dir: dir,
		global: &lumberjack.Logger{
			Filename:   filepath.Join(dir, globalLog),
			MaxSize:    10, // MB
			MaxBackups: 3,
		},
	}
	el.unsubscribe = bus.Subscribe(el.append)
	return el
}

// Close unsubscribes and closes the open files.
func (el *EventLogger) Close() {
	el.unsubscribe()

	el.mu.Lock()
	defer el.mu.Unlock()
	el.closeTaskFile()
	el.global.Close()
}

func (el *EventLogger) append(e events.Event) {
	if e.Type == events.EventWorkerStats {
		return
	}
	line, err := json.Marshal(e)
	if err != nil {
		slog.Warn("event log: encode", "type", e.Type, "error", err)
		return
	}
	line = append(line, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()
	w, err := el.writerFor(e.TaskID)
	if err == nil {
		_, err = w.Write(line)
	}
	if err != nil {
		slog.Warn("event log: write", "type", e.Type, "task_id", e.TaskID, "error", err)
	}
}

// writerFor returns the destination of an event. Events arrive grouped by
// task, so only the current task's file is kept open. Caller holds mu.
func (el *EventLogger) writerFor(taskID string) (io.Writer, error) {
	if taskID == "" {
		return el.global, nil
	}
	if taskID == el.taskID && el.taskFile != nil {
		return el.taskFile, nil
	}
	path, err := el.taskPath(taskID)
	if err != nil {
		return nil, err
	}
	el.closeTaskFile()
	if err := os.MkdirAll(el.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	el.taskID, el.taskFile = taskID, f
	return f, nil
}

func (el *EventLogger) closeTaskFile() {
	if el.taskFile != nil {
		el.taskFile.Close()
		el.taskFile, el.taskID = nil, ""
	}
}

func (el *EventLogger) taskPath(taskID string) (string, error) {
	if taskID == "." || taskID == ".." || strings.ContainsAny(taskID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrBadTaskID, taskID)
	}
	return filepath.Join(el.dir, taskID+".jsonl"), nil
}

// ReadTaskEvents returns the logged events of a task in write order. An
// unknown task yields no events.
func (el *EventLogger) ReadTaskEvents(taskID string) ([]events.Event, error) {
	path, err := el.taskPath(taskID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []events.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		var e events.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("event log %s line %d: %w", taskID, n, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
