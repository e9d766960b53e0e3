package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/dohr-michael/editthread/internal/tasks"
)

// Outcome is what running one task produced.
type Outcome struct {
	Payload   []byte
	Succeeded bool
	Error     string
}

// execute runs task and converts every way it can end into an Outcome.
// Nothing escapes: cancellation, errors and panics all fall back to the
// task's recovered partial result.
func (w *Worker) execute(task tasks.Task) (out Outcome) {
	env := &taskEnv{w: w, taskID: task.ID()}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("edit task panicked",
				"task_id", task.ID(), "name", task.Name(), "panic", r, "stack", string(debug.Stack()))
			out = Outcome{Payload: recoverPartial(task), Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	payload, err := task.Execute(env)
	switch {
	case err == nil:
		return Outcome{Payload: payload, Succeeded: true}
	case errors.Is(err, tasks.ErrCancelled):
		slog.Debug("edit task cancelled", "task_id", task.ID(), "name", task.Name())
		return Outcome{Payload: recoverPartial(task)}
	default:
		slog.Error("edit task failed", "task_id", task.ID(), "name", task.Name(), "error", err)
		msg := err.Error()
		if msg == "" {
			msg = "task failed"
		}
		return Outcome{Payload: recoverPartial(task), Error: msg}
	}
}

func recoverPartial(task tasks.Task) (data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("edit task recovery panicked", "task_id", task.ID(), "panic", r)
			data = nil
		}
	}()
	return task.AttemptRecovery()
}
