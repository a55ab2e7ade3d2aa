package signal

import (
	"sync"

	"github.com/cristivoicu/appserver/internal/core/domain"
)

// Registry maps live connections to authenticated identities, O(1) in both
// directions. One mutex guards both views so they can never disagree;
// check-and-insert and remove-and-return are atomic.
type Registry struct {
	mu         sync.RWMutex
	byUsername map[string]*Conn
	byID       map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		byUsername: make(map[string]*Conn),
		byID:       make(map[string]*Conn),
	}
}

// Register inserts both mappings atomically. Fails with ErrDuplicateUser when
// the identity already has a live connection.
func (r *Registry) Register(conn *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[conn.Username]; exists {
		return domain.ErrDuplicateUser
	}
	r.byUsername[conn.Username] = conn
	r.byID[conn.ID()] = conn
	return nil
}

func (r *Registry) ByUsername(username string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUsername[username]
	return conn, ok
}

func (r *Registry) ByID(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byID[id]
	return conn, ok
}

// Remove deletes both mappings and returns the removed connection. Idempotent:
// a connection already gone returns nil.
func (r *Registry) Remove(id string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	delete(r.byUsername, conn.Username)
	return conn
}

// Snapshot returns the current connections, in no particular order.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.byID))
	for _, conn := range r.byID {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
