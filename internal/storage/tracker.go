package storage

import (
	"sync"

	"github.com/dohr-michael/editthread/internal/events"
)

// Totals counts task outcomes since the tracker started.
type Totals struct {
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Cancelled     int64 `json:"cancelled"`
	BlocksChanged int64 `json:"blocks_changed"`
	ChunksWritten int64 `json:"chunks_written"`
}

// OutcomeTracker subscribes to terminal task events and accumulates totals.
type OutcomeTracker struct {
	mu          sync.Mutex
	totals      Totals
	unsubscribe func()
}

// NewOutcomeTracker creates an OutcomeTracker listening on bus.
func NewOutcomeTracker(bus *events.Bus) *OutcomeTracker {
	ot := &OutcomeTracker{}
	ot.unsubscribe = bus.Subscribe(ot.handleEvent,
		events.EventTaskCompleted, events.EventTaskFailed, events.EventTaskCancelled)
	return ot
}

// Close unsubscribes the tracker from the event bus.
func (ot *OutcomeTracker) Close() {
	if ot.unsubscribe != nil {
		ot.unsubscribe()
	}
}

// Totals returns a copy of the current counters.
func (ot *OutcomeTracker) Totals() Totals {
	ot.mu.Lock()
	defer ot.mu.Unlock()
	return ot.totals
}

func (ot *OutcomeTracker) handleEvent(e events.Event) {
	ot.mu.Lock()
	defer ot.mu.Unlock()

	switch e.Type {
	case events.EventTaskCompleted:
		p, ok := events.GetTaskCompletedPayload(e)
		if !ok {
			return
		}
		ot.totals.Completed++
		ot.totals.BlocksChanged += p.Affected
		ot.totals.ChunksWritten += int64(p.Chunks)
	case events.EventTaskFailed:
		p, ok := events.GetTaskFailedPayload(e)
		if !ok {
			return
		}
		ot.totals.Failed++
		ot.totals.ChunksWritten += int64(p.Chunks)
	case events.EventTaskCancelled:
		p, ok := events.GetTaskCancelledPayload(e)
		if !ok {
			return
		}
		ot.totals.Cancelled++
		ot.totals.ChunksWritten += int64(p.Chunks)
	}
}
