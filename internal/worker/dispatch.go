package worker

import (
	"time"

	"github.com/dohr-michael/editthread/internal/messages"
)

func (w *Worker) inputHandlers() map[messages.Kind]Handler {
	return map[messages.Kind]Handler{
		messages.KindAssignTask:   Handle(w.onAssignTask),
		messages.KindCancelTask:   Handle(w.onCancelTask),
		messages.KindChunkData:    Handle(w.onChunkData),
		messages.KindConfigUpdate: Handle(w.onConfigUpdate),
		messages.KindStatsRequest: Handle(w.onStatsRequest),
	}
}

func (w *Worker) onAssignTask(m messages.AssignTask) error {
	w.mu.Lock()
	busy := w.assigned != nil || w.running != nil
	w.mu.Unlock()
	if busy {
		w.dropQueuedAssign(m.TaskID)
		w.sendOutput(messages.TaskResult{TaskID: m.TaskID, Error: "worker busy"})
		return nil
	}

	task, err := w.registry.Create(m.Type, m.TaskID, m.Name, m.Params)
	if err != nil {
		w.dropQueuedAssign(m.TaskID)
		w.sendOutput(messages.TaskResult{TaskID: m.TaskID, Error: err.Error()})
		return err
	}

	w.mu.Lock()
	w.assigned = task
	if w.queuedAssign == m.TaskID {
		w.queuedAssign = ""
	}
	w.cancel = m.TaskID != "" && w.pendingCancel == m.TaskID
	if w.cancel {
		w.pendingCancel = ""
	}
	w.mu.Unlock()
	w.Debug("task assigned", "task_id", m.TaskID, "type", m.Type)
	return nil
}

func (w *Worker) dropQueuedAssign(id string) {
	w.mu.Lock()
	if w.queuedAssign == id {
		w.queuedAssign = ""
	}
	w.mu.Unlock()
}

func (w *Worker) onCancelTask(m messages.CancelTask) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.currentIDLocked()
	if current == "" || (m.TaskID != "" && m.TaskID != current) {
		return nil
	}
	w.cancel = true
	return nil
}

func (w *Worker) onChunkData(m messages.ChunkData) error {
	return w.chunks.Deliver(m)
}

func (w *Worker) onConfigUpdate(m messages.ConfigUpdate) error {
	w.debug.Store(m.Debug)
	return nil
}

func (w *Worker) onStatsRequest(messages.StatsRequest) error {
	snap := messages.StatsSnapshot{SampledAt: time.Now()}
	if s, ok := w.hook.(Snapshotter); ok {
		snap = s.Snapshot()
	}
	w.sendOutput(messages.StatsReport{Snapshot: snap})
	return nil
}
