package runtime

import (
	"fmt"
	"sync"

	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
)

// Registry maps an adapter id to its Adapter, replacing the teacher's
// priority-ordered provider slice with a flat map: spec adapters are
// selected by explicit id, never by failover.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter, read-only after startup except for
// model-tier override calls a caller may layer on top.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, appErrors.NewNotFoundError(fmt.Sprintf("no runtime adapter registered for %q", id))
	}
	return a, nil
}

// List returns the registered adapter ids, for health reporting.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
