package host

import (
	"context"
	"log/slog"
	"time"

	"github.com/dohr-michael/editthread/internal/events"
	"github.com/dohr-michael/editthread/internal/messages"
	"github.com/dohr-michael/editthread/internal/tasks"
	"github.com/dohr-michael/editthread/internal/worker"
)

func (h *Host) outputHandlers() map[messages.Kind]worker.Handler {
	return map[messages.Kind]worker.Handler{
		messages.KindTaskResult:   worker.Handle(h.onTaskResult),
		messages.KindChunkRequest: worker.Handle(h.onChunkRequest),
		messages.KindNotification: worker.Handle(h.onNotification),
		messages.KindStatsReport:  worker.Handle(h.onStatsReport),
	}
}

func (h *Host) onTaskResult(r messages.TaskResult) error {
	h.mu.Lock()
	q := h.inflight
	if q != nil && q.id == r.TaskID {
		h.inflight = nil
	} else {
		q = nil
	}
	h.mu.Unlock()

	if q == nil {
		// Results for tasks this host did not assign still get recorded.
		q = &queued{id: r.TaskID, submittedAt: time.Now(), startedAt: time.Now()}
		if rec, err := h.store.Get(r.TaskID); err == nil {
			q.typ, q.name, q.submittedAt = rec.Type, rec.Name, rec.CreatedAt
		}
		slog.Warn("result for task not in flight", "task_id", r.TaskID, "error", r.Error)
	}

	h.finish(q, r)
	h.dispatchNext()
	return nil
}

// finish applies a result, persists the final record and notifies listeners.
func (h *Host) finish(q *queued, r messages.TaskResult) {
	status := tasks.StatusOf(r)
	now := time.Now()

	var res *tasks.Result
	if len(r.Payload) > 0 {
		decoded, err := tasks.DecodeResult(r.Payload)
		if err != nil {
			slog.Error("decode task result", "task_id", q.id, "error", err)
		} else {
			res = &decoded
		}
	}

	if res != nil && len(res.Changed) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := h.world.SaveChunks(ctx, res.Changed)
		cancel()
		if err != nil {
			slog.Error("apply changed chunks", "task_id", q.id, "chunks", len(res.Changed), "error", err)
			if status == tasks.TaskCompleted {
				status = tasks.TaskFailed
				r.Error = "apply changes: " + err.Error()
			}
		}
	}

	rec := &tasks.Record{
		ID: q.id, Type: q.typ, Name: q.name, Status: status, Error: r.Error,
		Result: res, CreatedAt: q.submittedAt, FinishedAt: &now,
	}
	if !q.startedAt.IsZero() {
		started := q.startedAt
		rec.StartedAt = &started
	}
	h.save(rec)

	var duration time.Duration
	if !q.startedAt.IsZero() {
		duration = now.Sub(q.startedAt)
	}
	written := 0
	var affected int64
	if res != nil {
		written = len(res.Changed)
		affected = res.Affected
	}

	switch status {
	case tasks.TaskCompleted:
		slog.Info("task completed", "task_id", q.id, "affected", affected, "chunks", written, "duration", duration)
		h.publish(q.id, events.TaskCompletedPayload{TaskID: q.id, Name: q.name, Affected: affected, Chunks: written, Duration: duration})
	case tasks.TaskCancelled:
		slog.Info("task cancelled", "task_id", q.id, "chunks", written)
		h.publish(q.id, events.TaskCancelledPayload{TaskID: q.id, Name: q.name, Chunks: written, Duration: duration})
	default:
		slog.Warn("task failed", "task_id", q.id, "error", r.Error, "chunks", written)
		h.publish(q.id, events.TaskFailedPayload{TaskID: q.id, Name: q.name, Error: r.Error, Chunks: written, Duration: duration})
	}

	h.mu.Lock()
	cbs := h.callbacks[q.id]
	delete(h.callbacks, q.id)
	h.mu.Unlock()

	out := Outcome{TaskID: q.id, Status: status, Result: res, Error: r.Error}
	for _, fn := range cbs {
		fn(out)
	}
}

func (h *Host) onChunkRequest(req messages.ChunkRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	chunks, err := h.world.LoadChunks(ctx, req.Positions)
	if err != nil {
		// The task would wait forever for data that is not coming.
		h.w.CancelTask(req.TaskID)
		return err
	}
	return h.w.Send(messages.ChunkData{RequestID: req.RequestID, Chunks: chunks})
}

func (h *Host) onNotification(n messages.Notification) error {
	if n.TaskID != "" {
		if err := h.store.AppendProgress(n.TaskID, tasks.Progress{Ts: time.Now(), Text: n.Text}); err != nil {
			slog.Warn("append progress", "task_id", n.TaskID, "error", err)
		}
	}
	if h.bus != nil {
		h.bus.Publish(events.NewTaskEvent(events.SourceWorker,
			events.WorkerNotificationPayload{TaskID: n.TaskID, Text: n.Text}, n.TaskID))
	}
	return nil
}

func (h *Host) onStatsReport(r messages.StatsReport) error {
	h.mu.Lock()
	h.stats = r.Snapshot
	h.mu.Unlock()
	if h.bus != nil {
		h.bus.Publish(events.NewTypedEvent(events.SourceWorker, events.WorkerStatsPayload{StatsSnapshot: r.Snapshot}))
	}
	return nil
}
