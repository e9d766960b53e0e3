// Package worker runs edit tasks on one dedicated goroutine.
//
// The main side talks to the worker only through two byte channels: Send
// appends input messages, ParseOutput drains what the worker produced. The
// worker runs one task at a time, checks for cancellation whenever the
// task asks, and waits out a throttle period after every failed task.
package worker

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dohr-michael/editthread/internal/channel"
	"github.com/dohr-michael/editthread/internal/chunks"
	"github.com/dohr-michael/editthread/internal/frame"
	"github.com/dohr-michael/editthread/internal/messages"
	"github.com/dohr-michael/editthread/internal/stats"
	"github.com/dohr-michael/editthread/internal/tasks"
)

// DefaultThrottle is the pause after a failed task.
const DefaultThrottle = 10 * time.Second

// Cleaner resets shared state after a task failed. Clear must be idempotent.
type Cleaner interface {
	Clear()
}

// Snapshotter is implemented by hooks that can answer a StatsRequest.
type Snapshotter interface {
	Snapshot() messages.StatsSnapshot
}

// Config holds the worker's collaborators. Zero values pick defaults.
type Config struct {
	Registry *tasks.Registry // default: tasks.NewRegistry()
	Hook     stats.Hook      // default: stats.Nop
	Cleaner  Cleaner         // default: the worker's chunk request manager
	Throttle time.Duration   // default: DefaultThrottle
	Debug    bool
}

// Handler processes one decoded message.
type Handler func(messages.Message) error

// Handle adapts a typed handler to a Handler.
func Handle[T messages.Message](fn func(T) error) Handler {
	return func(m messages.Message) error {
		v, ok := m.(T)
		if !ok {
			return fmt.Errorf("handler for %s got %T", m.Kind(), m)
		}
		return fn(v)
	}
}

// Worker owns the edit goroutine and both channels.
type Worker struct {
	input  *channel.Channel
	output *channel.Channel

	registry *tasks.Registry
	hook     stats.Hook
	cleaner  Cleaner
	chunks   *chunks.Manager
	throttle time.Duration
	debug    atomic.Bool

	handlers map[messages.Kind]Handler

	mu       sync.Mutex
	state    State
	assigned tasks.Task
	running  tasks.Task
	cancel   bool
	paused   bool
	// id named by a CancelTask sent before its AssignTask was parsed
	pendingCancel string
	// last AssignTask sent and not parsed yet
	queuedAssign string

	started  atomic.Bool
	quitOnce sync.Once
	done     chan struct{}
}

// New creates a worker. Call Start to launch its goroutine.
func New(cfg Config) *Worker {
	w := &Worker{
		input:    channel.New("input"),
		output:   channel.New("output"),
		registry: cfg.Registry,
		hook:     cfg.Hook,
		cleaner:  cfg.Cleaner,
		chunks:   chunks.NewManager(),
		throttle: cfg.Throttle,
		done:     make(chan struct{}),
	}
	if w.registry == nil {
		w.registry = tasks.NewRegistry()
	}
	if w.hook == nil {
		w.hook = stats.Nop{}
	}
	if w.cleaner == nil {
		w.cleaner = w.chunks
	}
	if w.throttle <= 0 {
		w.throttle = DefaultThrottle
	}
	w.debug.Store(cfg.Debug)
	w.handlers = w.inputHandlers()
	return w
}

// Start launches the worker goroutine. Calling it twice is a no-op.
func (w *Worker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run()
	slog.Info("edit worker started", "throttle", w.throttle)
}

// Quit raises the pause flag, cancels the running task and waits for the
// worker goroutine to exit. Must not be called from a task.
func (w *Worker) Quit() {
	w.quitOnce.Do(func() {
		w.mu.Lock()
		w.paused = true
		w.cancel = true
		w.mu.Unlock()

		w.input.Shutdown()
		if w.started.CompareAndSwap(false, true) {
			// Never started: nothing will run, so terminate in place.
			w.setState(StateTerminated)
			close(w.done)
		}
		<-w.done
		slog.Info("edit worker stopped")
	})
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// State returns the current loop state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SetDebug toggles debug lines. The main side normally sends a ConfigUpdate
// instead so the change is ordered with other input.
func (w *Worker) SetDebug(on bool) {
	w.debug.Store(on)
}

// Debug logs msg when debug lines are enabled.
func (w *Worker) Debug(msg string, args ...any) {
	if !w.debug.Load() {
		return
	}
	slog.Info(msg, append([]any{"component", "edit-worker"}, args...)...)
}

// RequestCancel raises the cancellation flag for the current task, if any.
// Use CancelTask to stop a task by id.
func (w *Worker) RequestCancel() {
	w.CancelTask("")
}

// CancelTask stops the task with the given id, or the current task when id is
// empty. The flag is raised at once, so a task that never parses input still
// sees it on its next CheckExecution. A task whose AssignTask is still queued
// starts cancelled.
func (w *Worker) CancelTask(id string) {
	if err := w.Send(messages.CancelTask{TaskID: id}); err != nil {
		slog.Warn("edit worker: queue cancel", "task_id", id, "error", err)
	}
}

// CheckExecution returns tasks.ErrCancelled once the running task must stop.
func (w *Worker) CheckExecution() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel || w.paused {
		return tasks.ErrCancelled
	}
	return nil
}

// Send queues an input message for the worker. The message is encoded now,
// so later changes to the caller's value are not seen by the worker.
func (w *Worker) Send(m messages.Message) error {
	if m.Kind().Direction() != messages.Input {
		return fmt.Errorf("send: %s is not an input message", m.Kind())
	}
	switch v := m.(type) {
	case messages.CancelTask:
		w.markCancel(v.TaskID)
	case messages.AssignTask:
		w.mu.Lock()
		w.queuedAssign = v.TaskID
		w.mu.Unlock()
	}
	// The queued CancelTask still wakes a task waiting for chunk data.
	return w.enqueue(w.input, m)
}

func (w *Worker) sendOutput(m messages.Message) {
	if err := w.enqueue(w.output, m); err != nil {
		slog.Error("edit worker: send output", "kind", m.Kind(), "error", err)
	}
}

func (w *Worker) enqueue(ch *channel.Channel, m messages.Message) error {
	payload, err := messages.Marshal(m)
	if err != nil {
		return err
	}
	buf := frame.Encode(payload)
	w.hook.OnBeforeSend(m, len(buf))
	ch.Append(buf)
	return nil
}

// ParseOutput drains the output channel and hands each message to the handler
// registered for its kind, in order. It returns the number of messages
// handled successfully. Handler errors and panics are logged per message.
func (w *Worker) ParseOutput(handlers map[messages.Kind]Handler) int {
	return w.parse(w.output, handlers, "OUT")
}

// PendingOutput reports the number of undrained output bytes.
func (w *Worker) PendingOutput() int {
	return w.output.Pending()
}

func (w *Worker) parseInput() {
	w.parse(w.input, w.handlers, "IN")
}

func (w *Worker) parse(ch *channel.Channel, handlers map[messages.Kind]Handler, dir string) int {
	buf := ch.DrainAll()
	if buf == nil {
		return 0
	}
	payloads, err := frame.Drain(buf)
	if err != nil {
		slog.Error("edit worker: dropping batch", "channel", ch.Name(), "bytes", len(buf), "error", err)
		return 0
	}

	handled := 0
	for _, p := range payloads {
		m, err := messages.Unmarshal(p)
		if err != nil {
			slog.Error("edit worker: decode message", "channel", ch.Name(), "error", err)
			continue
		}
		w.Debug("Received "+dir+": "+m.Kind().String(), "kind", m.Kind())

		h, ok := handlers[m.Kind()]
		if !ok {
			slog.Warn("edit worker: no handler", "channel", ch.Name(), "kind", m.Kind())
			continue
		}
		start := time.Now()
		if err := dispatch(h, m); err != nil {
			slog.Error("edit worker: handle message", "channel", ch.Name(), "kind", m.Kind(), "error", err)
			continue
		}
		w.Debug("Handled "+dir+": "+m.Kind().String()+" in "+time.Since(start).String(), "kind", m.Kind())
		handled++
	}
	return handled
}

func dispatch(h Handler, m messages.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(m)
}

// =============================================================================
// LOOP
// =============================================================================

func (w *Worker) run() {
	defer close(w.done)
	defer w.setState(StateTerminated)

	for !w.isPaused() {
		w.hook.OnMemorySample()

		w.setState(StateParsingInput)
		w.parseInput()

		task := w.takeAssigned()
		if task == nil {
			if w.isPaused() {
				break
			}
			w.setState(StateIdle)
			w.input.WaitForData(0)
			continue
		}

		if w.runTask(task) {
			continue
		}

		w.cleaner.Clear()
		if w.isPaused() {
			break
		}
		w.setState(StateThrottling)
		w.Debug("throttling after failed task", "task_id", task.ID(), "for", w.throttle)
		w.input.WaitForData(w.throttle)
	}

	// A task assigned but never started still owes the main side a result.
	w.mu.Lock()
	pending := w.assigned
	w.assigned = nil
	w.mu.Unlock()
	if pending != nil {
		w.sendOutput(messages.TaskResult{TaskID: pending.ID()})
	}
}

// runTask executes task and sends its result. It reports whether the task
// succeeded.
func (w *Worker) runTask(task tasks.Task) bool {
	// Requests left over from an earlier task can never be answered usefully.
	w.chunks.Clear()
	w.hook.OnTaskStart(task.ID(), task.Name())
	w.Debug("Running task "+task.Name()+":"+task.ID(), "task_id", task.ID())
	start := time.Now()

	out := w.execute(task)

	w.mu.Lock()
	w.running = nil
	w.cancel = false
	w.mu.Unlock()
	w.hook.OnTaskEnd(task.ID())

	w.sendOutput(messages.TaskResult{
		TaskID:    task.ID(),
		Payload:   out.Payload,
		Succeeded: out.Succeeded,
		Error:     out.Error,
	})
	w.Debug("task finished", "task_id", task.ID(), "succeeded", out.Succeeded, "duration", time.Since(start))
	return out.Succeeded
}

func (w *Worker) takeAssigned() tasks.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.assigned
	if t == nil {
		return nil
	}
	w.assigned = nil
	w.running = t
	w.state = StateExecuting
	return t
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) isPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// markCancel applies a cancel request on the sending side. A request for an
// id that is not current is remembered for the next assignment only. An empty
// id with no current task names the assignment still waiting in the input.
func (w *Worker) markCancel(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	current := w.currentIDLocked()
	switch {
	case id == "" && current == "":
		if w.queuedAssign != "" {
			w.pendingCancel = w.queuedAssign
		}
	case id == "" || id == current:
		w.cancel = true
	default:
		w.pendingCancel = id
	}
}

func (w *Worker) currentIDLocked() string {
	if w.running != nil {
		return w.running.ID()
	}
	if w.assigned != nil {
		return w.assigned.ID()
	}
	return ""
}
