package quiz

import (
	"sync"

	"github.com/quizlive/quizlive/go/internal/models"
)

// Binding associates a live connection with a session, a role and, for
// players, the team it controls.
type Binding struct {
	SessionID string
	Role      models.ConnectionRole
	Team      string
}

// Registry maps connection ids to their session bindings. It is the source
// of truth for which connections belong to a session; bindings are destroyed
// on disconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Binding
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Binding),
	}
}

// Bind records the binding for a connection, replacing any previous one.
func (r *Registry) Bind(connID, sessionID string, role models.ConnectionRole, team string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = Binding{SessionID: sessionID, Role: role, Team: team}
}

// Lookup returns the binding for a connection, if any.
func (r *Registry) Lookup(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.conns[connID]
	return b, ok
}

// Unbind removes and returns the binding for a connection. It is a no-op
// for unmapped connections.
func (r *Registry) Unbind(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	return b, ok
}

// Count returns the number of live bindings.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
