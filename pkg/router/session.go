// Package router implements the Connection Router (spec §4.E): a
// one-shot, weighted-least-connections backend selection made once per
// client session and held for that session's lifetime.
package router

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nedscode/dbrouted/pkg/registry"
)

// Session is a client connection bound to exactly one backend for its
// entire lifetime (spec §4.E: "selection happens once per session"). Mask
// and Value are the role filter the session was bound under, frozen at
// creation so later validity checks re-verify against the same criteria
// (widened with MASTER when bound via the root-master fallback).
type Session struct {
	ID        uuid.UUID
	Backend   *registry.Backend
	CreatedAt time.Time
	Mask      registry.RoleFlags
	Value     registry.RoleFlags
}

// SessionRegistry tracks every live session so a backend leaving RUNNING
// can force-disconnect the sessions bound to it (spec §4.B step 7).
// Generalized from the teacher's registry-style lookup pattern
// (pkg/ingress.LoadBalancer's per-service mutex-guarded state) to a
// session-id-keyed table, using google/uuid session identifiers per
// SPEC_FULL §4.E.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionRegistry creates an empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uuid.UUID]*Session)}
}

// Create binds a new session to backend under the given role filter and
// registers it, incrementing the backend's connection counters exactly
// once (spec §3 invariant).
func (r *SessionRegistry) Create(backend *registry.Backend, mask, value registry.RoleFlags) *Session {
	s := &Session{ID: uuid.New(), Backend: backend, CreatedAt: time.Now(), Mask: mask, Value: value}
	backend.IncrConnections()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

// Close removes a session and decrements its backend's connection
// counter. Calling Close twice on the same id is a no-op the second time.
func (r *SessionRegistry) Close(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		s.Backend.DecrConnections()
	}
}

// Get returns the session with the given id, or nil if none exists.
func (r *SessionRegistry) Get(id uuid.UUID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DisconnectBackend force-closes every session currently bound to the
// named backend, returning the ids it closed. This is the function a
// monitor's DisconnectFunc (spec §4.B step 7) should call.
func (r *SessionRegistry) DisconnectBackend(backendName string) []uuid.UUID {
	r.mu.Lock()
	var victims []*Session
	for id, s := range r.sessions {
		if s.Backend.Name == backendName {
			victims = append(victims, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(victims))
	for _, s := range victims {
		s.Backend.DecrConnections()
		ids = append(ids, s.ID)
	}
	return ids
}
