package tasks

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a task from the parameters of an AssignTask message.
type Factory func(id, name string, params []byte) (Task, error)

// Registry maps task types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with the built-in edit kinds.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("fill", NewFill)
	r.Register("replace", NewReplace)
	r.Register("count", NewCount)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Has reports whether typ is registered.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typ]
	return ok
}

// Types lists the registered task types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for typ := range r.factories {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Create builds a task of the given type.
func (r *Registry) Create(typ, id, name string, params []byte) (Task, error) {
	r.mu.RLock()
	f, ok := r.factories[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown task type %q", typ)
	}
	if name == "" {
		name = typ
	}
	return f(id, name, params)
}

// NewFill sets every block of the region to params.Block.
func NewFill(id, name string, params []byte) (Task, error) {
	p, err := DecodeParams(params)
	if err != nil {
		return nil, err
	}
	return &edit{id: id, name: name, params: p, visit: func(uint16) (uint16, bool) {
		return p.Block, true
	}}, nil
}

// NewReplace turns params.From blocks of the region into params.Block.
func NewReplace(id, name string, params []byte) (Task, error) {
	p, err := DecodeParams(params)
	if err != nil {
		return nil, err
	}
	if p.From == p.Block {
		return nil, fmt.Errorf("replace: from and block are both %d", p.Block)
	}
	return &edit{id: id, name: name, params: p, visit: func(old uint16) (uint16, bool) {
		return p.Block, old == p.From
	}}, nil
}

// NewCount builds a histogram of block ids in the region without changing it.
func NewCount(id, name string, params []byte) (Task, error) {
	p, err := DecodeParams(params)
	if err != nil {
		return nil, err
	}
	return &edit{id: id, name: name, params: p, readOnly: true, visit: func(uint16) (uint16, bool) {
		return 0, false
	}}, nil
}
