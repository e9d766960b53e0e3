package world

import (
	"context"
	"sync"
)

// Store loads and saves chunks. Missing chunks load as all-air.
type Store interface {
	LoadChunks(ctx context.Context, positions []ChunkPos) ([]Chunk, error)
	SaveChunks(ctx context.Context, chunks []Chunk) error
}

// MemoryStore keeps chunks in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[ChunkPos]*Chunk
}

// NewMemoryStore returns an empty in-memory world.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[ChunkPos]*Chunk)}
}

func (m *MemoryStore) LoadChunks(_ context.Context, positions []ChunkPos) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Chunk, 0, len(positions))
	for _, p := range positions {
		if c, ok := m.chunks[p]; ok {
			out = append(out, *c.Clone())
			continue
		}
		out = append(out, *NewChunk(p))
	}
	return out, nil
}

func (m *MemoryStore) SaveChunks(_ context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range chunks {
		m.chunks[chunks[i].Pos] = chunks[i].Clone()
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
