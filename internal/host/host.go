// Package host is the main side of the edit worker: it queues submissions,
// hands them to the worker one at a time and applies what comes back.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/editthread/internal/events"
	"github.com/dohr-michael/editthread/internal/messages"
	"github.com/dohr-michael/editthread/internal/tasks"
	"github.com/dohr-michael/editthread/internal/worker"
	"github.com/dohr-michael/editthread/internal/world"
)

var (
	ErrClosed    = errors.New("host closed")
	ErrQueueFull = errors.New("submission queue full")
	ErrFinished  = errors.New("task already finished")
)

// storeTimeout bounds each world store call made from an output handler.
const storeTimeout = 5 * time.Second

// Submission describes an edit to run.
type Submission struct {
	Type   string           `json:"type"`
	Name   string           `json:"name,omitempty"`
	Params tasks.EditParams `json:"params"`
}

// Outcome is passed to completion callbacks.
type Outcome struct {
	TaskID string
	Status tasks.TaskStatus
	Result *tasks.Result
	Error  string
}

// Config holds the host's collaborators.
type Config struct {
	Worker        *worker.Worker
	World         world.Store
	Tasks         tasks.Store
	Bus           *events.Bus
	Registry      *tasks.Registry // used to reject unknown types at submit time
	QueueSize     int             // 0 = unbounded
	Tick          time.Duration   // output poll interval for Run (default 50ms)
	StatsInterval time.Duration   // StatsRequest period for Run, 0 disables
	MaxChunks     int64           // chunks one submission may touch (default and ceiling tasks.MaxRegionChunks)
}

type queued struct {
	id          string
	typ         string
	name        string
	params      []byte
	submittedAt time.Time
	startedAt   time.Time
}

// Host drives one worker. All methods are safe for concurrent use.
type Host struct {
	w        *worker.Worker
	world    world.Store
	store    tasks.Store
	bus      *events.Bus
	registry *tasks.Registry

	queueSize     int
	tick          time.Duration
	statsInterval time.Duration
	maxChunks     int64

	handlers map[messages.Kind]worker.Handler

	mu        sync.Mutex
	queue     []*queued
	inflight  *queued
	callbacks map[string][]func(Outcome)
	stats     messages.StatsSnapshot
	closed    bool

	tickMu sync.Mutex // serializes ParseOutput
}

// New creates a host. The worker must be started separately.
func New(cfg Config) *Host {
	h := &Host{
		w:             cfg.Worker,
		world:         cfg.World,
		store:         cfg.Tasks,
		bus:           cfg.Bus,
		registry:      cfg.Registry,
		queueSize:     cfg.QueueSize,
		tick:          cfg.Tick,
		statsInterval: cfg.StatsInterval,
		maxChunks:     cfg.MaxChunks,
		callbacks:     make(map[string][]func(Outcome)),
	}
	if h.registry == nil {
		h.registry = tasks.NewRegistry()
	}
	if h.maxChunks <= 0 || h.maxChunks > tasks.MaxRegionChunks {
		h.maxChunks = tasks.MaxRegionChunks
	}
	if h.tick <= 0 {
		h.tick = 50 * time.Millisecond
	}
	h.handlers = h.outputHandlers()
	return h
}

// Submit validates and queues an edit. It returns the new task ID.
func (h *Host) Submit(sub Submission) (string, error) {
	if !h.registry.Has(sub.Type) {
		return "", fmt.Errorf("unknown task type %q", sub.Type)
	}
	if err := tasks.CheckRegion(sub.Params.Region, h.maxChunks); err != nil {
		return "", err
	}
	params, err := tasks.EncodeParams(sub.Params)
	if err != nil {
		return "", err
	}
	name := sub.Name
	if name == "" {
		name = sub.Type
	}

	q := &queued{
		id:          tasks.GenerateTaskID(),
		typ:         sub.Type,
		name:        name,
		params:      params,
		submittedAt: time.Now(),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrClosed
	}
	if h.queueSize > 0 && len(h.queue) >= h.queueSize {
		h.mu.Unlock()
		return "", ErrQueueFull
	}
	h.queue = append(h.queue, q)
	queuedN := len(h.queue)
	h.mu.Unlock()

	h.save(&tasks.Record{ID: q.id, Type: q.typ, Name: q.name, Status: tasks.TaskPending, CreatedAt: q.submittedAt})
	h.publish(q.id, events.TaskSubmittedPayload{TaskID: q.id, Type: q.typ, Name: q.name, Queued: queuedN})
	slog.Info("task submitted", "task_id", q.id, "type", q.typ, "name", q.name)

	h.dispatchNext()
	return q.id, nil
}

// Cancel stops a queued or running task. A queued task is dropped at once; a
// running one reports its cancelled result through the normal output path.
func (h *Host) Cancel(id string) error {
	h.mu.Lock()
	if h.inflight != nil && h.inflight.id == id {
		h.mu.Unlock()
		h.w.CancelTask(id)
		slog.Info("cancel requested", "task_id", id)
		return nil
	}
	for i, q := range h.queue {
		if q.id == id {
			h.queue = append(h.queue[:i], h.queue[i+1:]...)
			h.mu.Unlock()
			h.finish(q, messages.TaskResult{TaskID: id})
			return nil
		}
	}
	h.mu.Unlock()

	rec, err := h.store.Get(id)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return ErrFinished
	}
	return fmt.Errorf("task %s is %s but not tracked by this host", id, rec.Status)
}

// OnComplete registers fn to run once task id reaches a terminal state. If
// the task already finished, fn runs immediately with the stored outcome.
func (h *Host) OnComplete(id string, fn func(Outcome)) {
	var once sync.Once
	call := func(o Outcome) { once.Do(func() { fn(o) }) }

	h.mu.Lock()
	h.callbacks[id] = append(h.callbacks[id], call)
	h.mu.Unlock()

	rec, err := h.store.Get(id)
	if err != nil || !rec.Status.Terminal() {
		return
	}
	h.mu.Lock()
	delete(h.callbacks, id)
	h.mu.Unlock()
	call(Outcome{TaskID: rec.ID, Status: rec.Status, Result: rec.Result, Error: rec.Error})
}

// SetDebug toggles the worker's debug lines through the input channel.
func (h *Host) SetDebug(on bool) error {
	return h.w.Send(messages.ConfigUpdate{Debug: on})
}

// RequestStats asks the worker for a fresh StatsReport.
func (h *Host) RequestStats() error {
	return h.w.Send(messages.StatsRequest{})
}

// Stats returns the last snapshot reported by the worker.
func (h *Host) Stats() messages.StatsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Status is a point-in-time view of the host queue.
type Status struct {
	WorkerState string   `json:"worker_state"`
	Running     string   `json:"running,omitempty"`
	Queued      []string `json:"queued"`
}

// Status returns the worker state, the running task and the queued tasks.
func (h *Host) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{WorkerState: h.w.State().String(), Queued: make([]string, 0, len(h.queue))}
	if h.inflight != nil {
		st.Running = h.inflight.id
	}
	for _, q := range h.queue {
		st.Queued = append(st.Queued, q.id)
	}
	return st
}

// Tick drains the worker's output once and returns the number of handled
// messages.
func (h *Host) Tick() int {
	h.tickMu.Lock()
	defer h.tickMu.Unlock()
	return h.w.ParseOutput(h.handlers)
}

// Run polls the worker output until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	var statsC <-chan time.Time
	if h.statsInterval > 0 {
		st := time.NewTicker(h.statsInterval)
		defer st.Stop()
		statsC = st.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Tick()
		case <-statsC:
			if err := h.RequestStats(); err != nil {
				slog.Warn("request worker stats", "error", err)
			}
		}
	}
}

// Close stops the worker, collects its last results and cancels whatever is
// still queued. Later submissions fail with ErrClosed.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.w.Quit()
	h.Tick()

	h.mu.Lock()
	rest := h.queue
	h.queue = nil
	if h.inflight != nil {
		rest = append([]*queued{h.inflight}, rest...)
		h.inflight = nil
	}
	h.mu.Unlock()

	for _, q := range rest {
		h.finish(q, messages.TaskResult{TaskID: q.id})
	}
}

// dispatchNext assigns the head of the queue when nothing is in flight.
func (h *Host) dispatchNext() {
	h.mu.Lock()
	if h.closed || h.inflight != nil || len(h.queue) == 0 {
		h.mu.Unlock()
		return
	}
	q := h.queue[0]
	h.queue = h.queue[1:]
	q.startedAt = time.Now()
	h.inflight = q
	h.mu.Unlock()

	started := q.startedAt
	h.save(&tasks.Record{
		ID: q.id, Type: q.typ, Name: q.name, Status: tasks.TaskRunning,
		CreatedAt: q.submittedAt, StartedAt: &started,
	})

	if err := h.w.Send(messages.AssignTask{TaskID: q.id, Type: q.typ, Name: q.name, Params: q.params}); err != nil {
		slog.Error("assign task", "task_id", q.id, "error", err)
		h.mu.Lock()
		h.inflight = nil
		h.mu.Unlock()
		h.finish(q, messages.TaskResult{TaskID: q.id, Error: err.Error()})
		h.dispatchNext()
		return
	}
	h.publish(q.id, events.TaskStartedPayload{TaskID: q.id, Type: q.typ, Name: q.name})
}

func (h *Host) save(r *tasks.Record) {
	if err := h.store.Save(r); err != nil {
		slog.Error("save task record", "task_id", r.ID, "error", err)
	}
}

func (h *Host) publish(taskID string, p events.EventPayload) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(events.NewTaskEvent(events.SourceHost, p, taskID))
}
