package events

import (
	"sync"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	for len(out) < n {
		select {
		case e := <-ch:
			out = append(out, e)
		case <-time.After(time.Second):
			t.Fatalf("got %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestBus_TypeFilter(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	submitted, unsub := bus.SubscribeChan(8, EventTaskSubmitted)
	defer unsub()
	all, unsubAll := bus.SubscribeChan(8)
	defer unsubAll()

	bus.Publish(NewTypedEvent(SourceHost, TaskSubmittedPayload{TaskID: "task_1", Type: "fill"}))
	bus.Publish(NewTypedEvent(SourceWorker, WorkerNotificationPayload{Text: "hello"}))

	got := collect(t, all, 2)
	if got[0].Type != EventTaskSubmitted || got[1].Type != EventWorkerNotification {
		t.Errorf("unfiltered order = %s, %s", got[0].Type, got[1].Type)
	}
	if e := collect(t, submitted, 1)[0]; e.Type != EventTaskSubmitted {
		t.Errorf("filtered subscriber got %s", e.Type)
	}
	select {
	case e := <-submitted:
		t.Errorf("filtered subscriber also got %s", e.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_PreservesOrder(t *testing.T) {
	bus := NewBus(256)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(256, EventWorkerNotification)
	defer unsub()

	for i := 0; i < 100; i++ {
		bus.Publish(NewEvent(EventWorkerNotification, SourceWorker, map[string]any{"i": i}))
	}
	for i, e := range collect(t, ch, 100) {
		if got := e.Payload["i"].(int); got != i {
			t.Fatalf("event %d carries i=%d", i, got)
		}
	}
}

func TestBus_HandlerMayPublish(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	bus.Subscribe(func(e Event) {
		bus.Publish(NewTaskEvent(SourceScheduler, ScheduleTriggerPayload{Entry: "follow", TaskID: "task_2"}, "task_2"))
	}, EventTaskCompleted)
	triggers, unsub := bus.SubscribeChan(4, EventScheduleTrigger)
	defer unsub()

	bus.Publish(NewTaskEvent(SourceHost, TaskCompletedPayload{TaskID: "task_1"}, "task_1"))
	if e := collect(t, triggers, 1)[0]; e.TaskID != "task_2" {
		t.Errorf("trigger task id = %q", e.TaskID)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	unsub := bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	watcher, unsubWatcher := bus.SubscribeChan(4)
	defer unsubWatcher()

	bus.Publish(NewTypedEvent(SourceHost, TaskSubmittedPayload{TaskID: "a"}))
	collect(t, watcher, 1)
	unsub()
	bus.Publish(NewTypedEvent(SourceHost, TaskSubmittedPayload{TaskID: "b"}))
	collect(t, watcher, 1)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	bus.Subscribe(func(Event) {
		once.Do(func() { close(entered) })
		<-release
	})

	bus.Publish(NewEvent(EventWorkerStats, SourceWorker, nil))
	<-entered
	bus.Publish(NewEvent(EventWorkerStats, SourceWorker, nil)) // queued
	bus.Publish(NewEvent(EventWorkerStats, SourceWorker, nil)) // dropped
	close(release)

	if got := bus.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestBus_History(t *testing.T) {
	bus := NewBus(3)
	defer bus.Close()

	watcher, unsub := bus.SubscribeChan(8)
	defer unsub()
	for i := 0; i < 5; i++ {
		bus.Publish(NewEvent(EventWorkerNotification, SourceWorker, map[string]any{"i": i}))
		collect(t, watcher, 1)
	}

	h := bus.History(10)
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	if h[0].Payload["i"] != 2 || h[2].Payload["i"] != 4 {
		t.Errorf("history = %v..%v, want 2..4", h[0].Payload["i"], h[2].Payload["i"])
	}
	if last := bus.History(1); len(last) != 1 || last[0].Payload["i"] != 4 {
		t.Errorf("History(1) = %v", last)
	}
	if bus.History(0) != nil {
		t.Error("History(0) should be nil")
	}
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(4)
	_, unsub := bus.SubscribeChan(8)
	unsub()
	unsub()

	bus.Close()
	bus.Close()
	bus.Publish(NewTypedEvent(SourceHost, TaskSubmittedPayload{TaskID: "task_1"}))
	if bus.Dropped() != 0 {
		t.Error("publish on a closed bus counted as a drop")
	}
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := NewEvent(EventWorkerStats, SourceWorker, nil)
	b := NewEvent(EventWorkerStats, SourceWorker, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids %q and %q", a.ID, b.ID)
	}
}
