// Package sessionstore persists the local session record, keyed by calling
// origin. Backends are selected by URI scheme through the Factory; all of
// them implement replace-wholesale semantics so readers never observe a
// half-written record.
package sessionstore

import (
	"context"
	"sync"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// MemoryStore keeps sessions in process memory. Used in tests and for
// ephemeral deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[interfaces.Origin]interfaces.LocalSession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[interfaces.Origin]interfaces.LocalSession)}
}

// Get returns a copy of the session for the origin, or ErrSessionNotFound.
func (s *MemoryStore) Get(ctx context.Context, origin interfaces.Origin) (*interfaces.LocalSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[origin]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	copied := session
	return &copied, nil
}

// Replace stores the session for the origin, overwriting any previous record
// wholesale.
func (s *MemoryStore) Replace(ctx context.Context, origin interfaces.Origin, session *interfaces.LocalSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[origin] = *session
	return nil
}

// Clear removes the session for the origin. Clearing an empty origin is not
// an error.
func (s *MemoryStore) Clear(ctx context.Context, origin interfaces.Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, origin)
	return nil
}
