// Package registry implements the Backend Registry (spec §4.A): a catalog
// of backends with identity, role flags, and connection counters.
//
// Registration and deregistration are serialized by a global lock. Lookups
// take the shared read side of that lock: they run concurrently with each
// other and wait only for a registration or deregistration in progress.
// Role flags and counters inside a *Backend are themselves atomic.
package registry

import (
	"fmt"
	"sync"
)

// Registry is the process-wide catalog of known backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*Backend
	order    []string // preserves insertion order for deterministic iteration
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{backends: make(map[string]*Backend)}
}

// Register adds a backend to the catalog. Returns an error if the name is
// already taken — names are unique within process (spec §3).
func (r *Registry) Register(b *Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[b.Name]; exists {
		return fmt.Errorf("registry: backend %q already registered", b.Name)
	}
	r.backends[b.Name] = b
	r.order = append(r.order, b.Name)
	return nil
}

// Deregister removes a backend from the catalog by name.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[name]; !exists {
		return
	}
	delete(r.backends, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the backend with the given name, or nil if none exists.
// Safe to call concurrently with probing and routing; does not block on
// the backend's own atomic fields.
func (r *Registry) Lookup(name string) *Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[name]
}

// All returns a snapshot slice of every registered backend, in
// registration order.
func (r *Registry) All() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Backend, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.backends[n])
	}
	return out
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}
