package gateway

import (
	"context"

	"github.com/dohr-michael/editthread/internal/host"
	"github.com/dohr-michael/editthread/internal/tasks"
)

// TaskHandler adapts the host and the task store for the HTTP and WS
// surfaces.
type TaskHandler struct {
	host  *host.Host
	store tasks.Store
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(h *host.Host, store tasks.Store) *TaskHandler {
	return &TaskHandler{host: h, store: store}
}

// TaskDetail is a record with its progress lines.
type TaskDetail struct {
	*tasks.Record
	Progress []tasks.Progress `json:"progress"`
}

// Submit queues an edit on the host.
func (th *TaskHandler) Submit(sub host.Submission) (string, error) {
	return th.host.Submit(sub)
}

// Cancel cancels a queued or running task.
func (th *TaskHandler) Cancel(id string) error {
	return th.host.Cancel(id)
}

// Get returns the stored record of a task.
func (th *TaskHandler) Get(id string) (*tasks.Record, error) {
	return th.store.Get(id)
}

// List returns stored records matching filter.
func (th *TaskHandler) List(filter tasks.ListFilter) ([]*tasks.Record, error) {
	return th.store.List(filter)
}

// Detail returns a record together with its progress lines.
func (th *TaskHandler) Detail(id string) (*TaskDetail, error) {
	rec, err := th.store.Get(id)
	if err != nil {
		return nil, err
	}
	progress, err := th.store.LoadProgress(id)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = []tasks.Progress{}
	}
	return &TaskDetail{Record: rec, Progress: progress}, nil
}

// Wait blocks until task id finishes or ctx is done.
func (th *TaskHandler) Wait(ctx context.Context, id string) (host.Outcome, error) {
	ch := make(chan host.Outcome, 1)
	th.host.OnComplete(id, func(o host.Outcome) {
		select {
		case ch <- o:
		default:
		}
	})
	select {
	case o := <-ch:
		return o, nil
	case <-ctx.Done():
		return host.Outcome{}, ctx.Err()
	}
}
