package events

import (
	"encoding/json"
	"time"

	"github.com/dohr-michael/editthread/internal/messages"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TASK EVENTS
// =============================================================================

type TaskSubmittedPayload struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Queued int    `json:"queued"`
}

func (TaskSubmittedPayload) EventType() EventType { return EventTaskSubmitted }

type TaskStartedPayload struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskCompletedPayload struct {
	TaskID   string        `json:"task_id"`
	Name     string        `json:"name"`
	Affected int64         `json:"affected"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	TaskID   string        `json:"task_id"`
	Name     string        `json:"name"`
	Error    string        `json:"error"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

type TaskCancelledPayload struct {
	TaskID   string        `json:"task_id"`
	Name     string        `json:"name"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (TaskCancelledPayload) EventType() EventType { return EventTaskCancelled }

// =============================================================================
// WORKER EVENTS
// =============================================================================

type WorkerNotificationPayload struct {
	TaskID string `json:"task_id,omitempty"`
	Text   string `json:"text"`
}

func (WorkerNotificationPayload) EventType() EventType { return EventWorkerNotification }

type WorkerStatsPayload struct {
	messages.StatsSnapshot
}

func (WorkerStatsPayload) EventType() EventType { return EventWorkerStats }

// =============================================================================
// SCHEDULER EVENTS
// =============================================================================

type ScheduleTriggerPayload struct {
	Entry   string `json:"entry"`
	Trigger string `json:"trigger"` // "cron" or "event:<type>"
	TaskID  string `json:"task_id"`
}

func (ScheduleTriggerPayload) EventType() EventType { return EventScheduleTrigger }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewEvent(payload.EventType(), source, toMap(payload))
}

// NewTaskEvent is NewTypedEvent with the event attached to a task.
func NewTaskEvent(source EventSource, payload EventPayload, taskID string) Event {
	e := NewTypedEvent(source, payload)
	e.TaskID = taskID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetTaskCompletedPayload(e Event) (TaskCompletedPayload, bool) {
	return ExtractPayload[TaskCompletedPayload](e)
}

func GetTaskFailedPayload(e Event) (TaskFailedPayload, bool) {
	return ExtractPayload[TaskFailedPayload](e)
}

func GetTaskCancelledPayload(e Event) (TaskCancelledPayload, bool) {
	return ExtractPayload[TaskCancelledPayload](e)
}

func GetWorkerNotificationPayload(e Event) (WorkerNotificationPayload, bool) {
	return ExtractPayload[WorkerNotificationPayload](e)
}

func GetWorkerStatsPayload(e Event) (WorkerStatsPayload, bool) {
	return ExtractPayload[WorkerStatsPayload](e)
}

func GetScheduleTriggerPayload(e Event) (ScheduleTriggerPayload, bool) {
	return ExtractPayload[ScheduleTriggerPayload](e)
}

// IsTaskTerminal reports whether the event closes a task's lifecycle.
func IsTaskTerminal(t EventType) bool {
	switch t {
	case EventTaskCompleted, EventTaskFailed, EventTaskCancelled:
		return true
	}
	return false
}
