// Package tasks defines the edit task contract run by the worker and the
// built-in edit kinds.
package tasks

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/dohr-michael/editthread/internal/messages"
	"github.com/dohr-michael/editthread/internal/world"
)

// ErrCancelled is returned by Env.CheckExecution once the running task must stop.
// It is an expected outcome, not a failure.
var ErrCancelled = errors.New("task cancelled")

// TaskStatus represents the lifecycle state of a submitted task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transition can follow s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// StatusOf maps a worker result to the final task status.
func StatusOf(r messages.TaskResult) TaskStatus {
	switch {
	case r.Succeeded:
		return TaskCompleted
	case r.Error == "":
		return TaskCancelled
	default:
		return TaskFailed
	}
}

// Task is one unit of work for the edit worker.
//
// Execute runs on the worker goroutine and must call env.CheckExecution at
// frequent safe points, returning its error unchanged. AttemptRecovery is
// called after Execute was cancelled or failed and must not panic; it returns
// whatever partial result can be salvaged.
type Task interface {
	ID() string
	Name() string
	Execute(env Env) ([]byte, error)
	AttemptRecovery() []byte
}

// Env is what a running task may ask of the worker.
type Env interface {
	// CheckExecution returns ErrCancelled once the task should stop.
	CheckExecution() error
	// LoadChunks asks the main side for chunks and blocks until they arrive.
	LoadChunks(positions []world.ChunkPos) (map[world.ChunkPos]*world.Chunk, error)
	// Notify sends a progress line to the main side.
	Notify(text string)
}

// Result is the payload every built-in task returns.
type Result struct {
	Changed  []world.Chunk    `cbor:"1,keyasint,omitempty" json:"-"`
	Affected int64            `cbor:"2,keyasint" json:"affected"`
	Counts   map[uint16]int64 `cbor:"3,keyasint,omitempty" json:"counts,omitempty"`
	Chunks   int              `cbor:"4,keyasint" json:"chunks"`
	Partial  bool             `cbor:"5,keyasint,omitempty" json:"partial,omitempty"`
}

// EncodeResult encodes r with the channel codec.
func EncodeResult(r Result) ([]byte, error) {
	return messages.EncodeValue(r)
}

// DecodeResult decodes a payload produced by EncodeResult.
func DecodeResult(data []byte) (Result, error) {
	var r Result
	if len(data) == 0 {
		return r, nil
	}
	err := messages.DecodeValue(data, &r)
	return r, err
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}
