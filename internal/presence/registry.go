// Package presence tracks which users currently have a live, addressable
// connection. The registry is the only shared mutable structure on the
// dispatch path and owns its map exclusively.
package presence

import (
	"sync"

	"github.com/google/uuid"

	"github.com/example/raksha/internal/sos/domain"
)

// Registry maps user identities to their active session. At most one entry
// exists per user: a new registration for the same user overwrites the prior
// mapping without closing the prior connection.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]domain.Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]domain.Session)}
}

// Register inserts or overwrites the session for userID.
func (r *Registry) Register(userID uuid.UUID, session domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = session
}

// Unregister removes the entry for userID only if the stored session is the
// one disconnecting. A disconnect that races behind a newer registration for
// the same user must not evict the newer session.
func (r *Registry) Unregister(userID uuid.UUID, session domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[userID]; ok && current == session {
		delete(r.sessions, userID)
	}
}

// Lookup returns the live session for userID, if any.
func (r *Registry) Lookup(userID uuid.UUID) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID]
	return session, ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
