package tasks

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in memory. Records are copied in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*Record
	progress map[string][]Progress
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*Record),
		progress: make(map[string][]Progress),
	}
}

func cloneRecord(r *Record) *Record {
	c := *r
	if r.Result != nil {
		res := *r.Result
		c.Result = &res
	}
	return &c
}

// Save creates or replaces a record, assigning an ID when missing.
func (m *MemoryStore) Save(r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = GenerateTaskID()
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	m.records[r.ID] = cloneRecord(r)
	return nil
}

func (m *MemoryStore) Get(id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(r), nil
}

// List returns records matching the filter, most recently updated first.
func (m *MemoryStore) List(filter ListFilter) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []*Record
	for _, r := range m.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		records = append(records, cloneRecord(r))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

func (m *MemoryStore) AppendProgress(taskID string, p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[taskID] = append(m.progress[taskID], p)
	return nil
}

func (m *MemoryStore) LoadProgress(taskID string) ([]Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Progress(nil), m.progress[taskID]...), nil
}

var _ Store = (*MemoryStore)(nil)
