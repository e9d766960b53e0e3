package tasks

import (
	"testing"
)

func TestRecoverTasks(t *testing.T) {
	store := NewMemoryStore()

	running := &Record{Type: "fill", Status: TaskRunning}
	pending := &Record{Type: "fill", Status: TaskPending}
	completed := &Record{Type: "count", Status: TaskCompleted}

	for _, r := range []*Record{running, pending, completed} {
		if err := store.Save(r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	recovered, err := RecoverTasks(store)
	if err != nil {
		t.Fatalf("RecoverTasks: %v", err)
	}
	if recovered != 2 {
		t.Errorf("recovered: got %d, want 2", recovered)
	}

	for _, id := range []string{running.ID, pending.ID} {
		r, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if r.Status != TaskFailed {
			t.Errorf("%s status: got %s, want failed", id, r.Status)
		}
		if r.Error != interruptedError {
			t.Errorf("%s error: got %q", id, r.Error)
		}
		if r.FinishedAt == nil {
			t.Errorf("%s: expected finished time", id)
		}
	}

	progress, _ := store.LoadProgress(running.ID)
	if len(progress) != 1 {
		t.Errorf("progress lines: got %d, want 1", len(progress))
	}

	c, _ := store.Get(completed.ID)
	if c.Status != TaskCompleted {
		t.Errorf("completed status: got %s, want completed", c.Status)
	}
}
