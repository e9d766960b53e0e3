// Package chunks tracks the chunk requests a running task has sent to the
// main side and collects the answers as they arrive on the input channel.
package chunks

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dohr-michael/editthread/internal/messages"
	"github.com/dohr-michael/editthread/internal/world"
)

var (
	// ErrUnknownRequest is returned for data answering a request that was
	// never made or was dropped by Clear.
	ErrUnknownRequest = errors.New("unknown chunk request")
	// ErrIncomplete is returned when delivered data misses a requested chunk.
	ErrIncomplete = errors.New("incomplete chunk data")
)

type request struct {
	taskID    string
	positions []world.ChunkPos
	data      map[world.ChunkPos]*world.Chunk
}

// Manager matches ChunkData messages to outstanding requests.
type Manager struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*request
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{pending: make(map[uint64]*request)}
}

// Request registers a request for positions and returns the message to send.
func (m *Manager) Request(taskID string, positions []world.ChunkPos) messages.ChunkRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.pending[id] = &request{
		taskID:    taskID,
		positions: append([]world.ChunkPos(nil), positions...),
	}
	return messages.ChunkRequest{RequestID: id, TaskID: taskID, Positions: positions}
}

// Deliver attaches data to its request. Chunks that were not asked for are
// ignored; a missing or malformed chunk fails the delivery and the request
// stays pending.
func (m *Manager) Deliver(d messages.ChunkData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.pending[d.RequestID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRequest, d.RequestID)
	}
	if req.data != nil {
		return fmt.Errorf("chunk request %d answered twice", d.RequestID)
	}

	byPos := make(map[world.ChunkPos]*world.Chunk, len(d.Chunks))
	for i := range d.Chunks {
		c := &d.Chunks[i]
		if !c.Valid() {
			return fmt.Errorf("chunk request %d: malformed chunk %s", d.RequestID, c.Pos)
		}
		byPos[c.Pos] = c
	}

	data := make(map[world.ChunkPos]*world.Chunk, len(req.positions))
	for _, p := range req.positions {
		c, ok := byPos[p]
		if !ok {
			return fmt.Errorf("%w: request %d misses %s", ErrIncomplete, d.RequestID, p)
		}
		data[p] = c
	}
	req.data = data
	return nil
}

// Take returns the data of a fulfilled request and forgets it. ok is false
// while the answer has not arrived.
func (m *Manager) Take(requestID uint64) (data map[world.ChunkPos]*world.Chunk, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, exists := m.pending[requestID]
	if !exists || req.data == nil {
		return nil, false
	}
	delete(m.pending, requestID)
	return req.data, true
}

// Outstanding reports whether requestID is still registered.
func (m *Manager) Outstanding(requestID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[requestID]
	return ok
}

// Pending returns the number of registered requests.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Clear drops every registered request. Safe to call repeatedly.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pending)
}
