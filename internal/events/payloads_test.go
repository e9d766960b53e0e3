package events

import (
	"testing"
	"time"

	"github.com/dohr-michael/editthread/internal/messages"
)

func TestTypedEvent_TaskCompleted(t *testing.T) {
	payload := TaskCompletedPayload{TaskID: "task_1", Name: "walls", Affected: 4096, Chunks: 4, Duration: 2 * time.Second}
	evt := NewTaskEvent(SourceHost, payload, "task_1")

	if evt.Type != EventTaskCompleted {
		t.Fatalf("expected type %q, got %q", EventTaskCompleted, evt.Type)
	}
	if evt.TaskID != "task_1" {
		t.Fatalf("expected task id task_1, got %q", evt.TaskID)
	}
	got, ok := GetTaskCompletedPayload(evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Affected != 4096 || got.Chunks != 4 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.Duration != 2*time.Second {
		t.Fatalf("expected duration 2s, got %s", got.Duration)
	}
}

func TestTypedEvent_TaskFailed(t *testing.T) {
	evt := NewTypedEvent(SourceHost, TaskFailedPayload{TaskID: "task_2", Error: "boom", Chunks: 1})

	if evt.Type != EventTaskFailed {
		t.Fatalf("expected type %q, got %q", EventTaskFailed, evt.Type)
	}
	got, ok := GetTaskFailedPayload(evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Error != "boom" {
		t.Fatalf("expected error %q, got %q", "boom", got.Error)
	}
}

func TestTypedEvent_WorkerStats(t *testing.T) {
	snap := messages.StatsSnapshot{HeapAlloc: 1024, TasksStarted: 3, CurrentTask: "task_9"}
	evt := NewTypedEvent(SourceWorker, WorkerStatsPayload{StatsSnapshot: snap})

	if evt.Payload["heap_alloc"] != float64(1024) {
		t.Fatalf("expected flattened heap_alloc, got %v", evt.Payload["heap_alloc"])
	}
	got, ok := GetWorkerStatsPayload(evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.TasksStarted != 3 || got.CurrentTask != "task_9" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestIsTaskTerminal(t *testing.T) {
	tests := []struct {
		typ  EventType
		want bool
	}{
		{EventTaskSubmitted, false},
		{EventTaskStarted, false},
		{EventTaskCompleted, true},
		{EventTaskFailed, true},
		{EventTaskCancelled, true},
		{EventWorkerNotification, false},
	}
	for _, tt := range tests {
		if got := IsTaskTerminal(tt.typ); got != tt.want {
			t.Errorf("IsTaskTerminal(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
