// Package events provides the in-memory bus carrying task lifecycle and
// worker events to the gateway, the event log and the CLI watchers.
package events

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	// Task lifecycle, published by the host as results come back.
	EventTaskSubmitted EventType = "task.submitted"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"

	// Worker → main
	EventWorkerNotification EventType = "worker.notification"
	EventWorkerStats        EventType = "worker.stats"

	EventScheduleTrigger EventType = "schedule.trigger"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceHost      EventSource = "host"
	SourceWorker    EventSource = "worker"
	SourceScheduler EventSource = "scheduler"
	SourceGateway   EventSource = "gateway"
)

// Event is one bus message. Payload holds the JSON form of a typed payload.
type Event struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// NewEvent creates an event stamped now.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

// Subscriber receives events on the bus goroutine and must not block.
type Subscriber func(Event)

type subscription struct {
	id      uint64
	types   map[EventType]struct{} // nil means all
	handler Subscriber
}

func (s *subscription) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus fans events out to subscribers from a single goroutine, so every
// subscriber sees events in publish order. Publish never blocks: when the
// queue is full the event is dropped and counted.
type Bus struct {
	queue   chan Event
	done    chan struct{}
	closed  atomic.Bool // read without mu so handlers may publish
	dropped atomic.Uint64
	history *history

	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
}

// NewBus starts a bus whose queue and history hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	b := &Bus{
		queue:   make(chan Event, bufferSize),
		done:    make(chan struct{}),
		history: newHistory(bufferSize),
	}
	go b.loop()
	return b
}

func (b *Bus) loop() {
	for {
		select {
		case <-b.done:
			return
		case e := <-b.queue:
			b.history.add(e)
			b.mu.RLock()
			for _, s := range b.subs {
				if s.wants(e.Type) {
					s.handler(e)
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Publish queues e. It is a no-op on a closed bus.
func (b *Bus) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.queue <- e:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("event bus full, dropping events", "type", e.Type, "dropped", n)
		}
	}
}

// Dropped returns how many events Publish discarded.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers handler for the given types, or all types when none
// are given. The returned func unsubscribes.
func (b *Bus) Subscribe(handler Subscriber, types ...EventType) func() {
	s := &subscription{handler: handler}
	if len(types) > 0 {
		s.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(x *subscription) bool { return x.id == s.id })
	}
}

// SubscribeChan delivers matching events to a buffered channel; events
// that find it full are skipped. The returned func unsubscribes and closes
// the channel.
func (b *Bus) SubscribeChan(bufSize int, types ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	unsubscribe := b.Subscribe(func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}, types...)

	// Unsubscribing takes the write lock, so no handler is mid-send when
	// the channel closes.
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			close(ch)
		})
	}
}

// History returns up to limit recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.history.last(limit)
}

// Close stops dispatching. Queued events are discarded.
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}

// history keeps the most recent events in a fixed-size ring.
type history struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	count int
}

func newHistory(size int) *history {
	return &history{buf: make([]Event, size)}
}

func (h *history) add(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = e
	h.next = (h.next + 1) % len(h.buf)
	h.count = min(h.count+1, len(h.buf))
}

func (h *history) last(n int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	n = min(n, h.count)
	if n <= 0 {
		return nil
	}
	out := make([]Event, 0, n)
	for i := h.next - n; i < h.next; i++ {
		out = append(out, h.buf[(i+len(h.buf))%len(h.buf)])
	}
	return out
}
