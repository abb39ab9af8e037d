package supervisor

import (
	"sort"
	"sync"

	"github.com/GriffinCanCode/nexus/backend/internal/shared/id"
)

// Registry holds at most one live session per node
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // Protected by mu
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the live session for a node
func (r *Registry) Get(nodeID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[nodeID]
	return s, ok
}

// Put stores a session, failing if the node slot is taken
func (r *Registry) Put(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.nodeID]; exists {
		return ErrSlotOccupied
	}
	r.sessions[s.nodeID] = s
	return nil
}

// Remove deletes the node slot only if it still holds the given session
func (r *Registry) Remove(nodeID string, sessionID id.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[nodeID]
	if !ok || s.id != sessionID {
		return false
	}
	delete(r.sessions, nodeID)
	return true
}

// List returns all live sessions ordered by node id
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].nodeID < out[j].nodeID })
	return out
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
