package tasks

import (
	"time"
)

// interruptedError is recorded on tasks that were still queued or running when
// the process stopped. Tasks are never re-run after a restart.
const interruptedError = "interrupted by restart"

// RecoverTasks marks pending and running records as failed after a restart.
// Should be called on startup before the host accepts submissions.
func RecoverTasks(store Store) (int, error) {
	pending, err := store.List(ListFilter{Status: TaskPending})
	if err != nil {
		return 0, err
	}
	running, err := store.List(ListFilter{Status: TaskRunning})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, r := range append(pending, running...) {
		now := time.Now()
		r.Status = TaskFailed
		r.Error = interruptedError
		r.FinishedAt = &now
		if err := store.Save(r); err != nil {
			continue
		}
		_ = store.AppendProgress(r.ID, Progress{Ts: now, Text: "marked failed after restart"})
		recovered++
	}
	return recovered, nil
}
