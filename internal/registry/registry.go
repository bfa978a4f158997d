// Package registry tracks which users currently hold a live connection.
//
// The table is process-wide but explicitly owned: it is constructed once in
// main and handed to every session and handler that needs it. Each identity
// maps to at most one connection; a later registration supersedes an earlier
// one.
package registry

import "sync"

// Conn is the send capability of one live connection. Push must not block:
// it reports false when the frame could not be queued (slow or closing
// consumer). Close tears the connection down and is safe to call more than
// once.
type Conn interface {
	Push(frame []byte) bool
	Close()
}

// Registry maps a user identity to its single live connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register binds identity to conn, displacing any previous entry. The
// displaced connection, if any, is returned so the caller can decide how to
// dispose of it; the registry itself never closes it.
func (r *Registry) Register(identity string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[identity]
	r.conns[identity] = conn
	return prev
}

// Unregister removes the entry for identity, but only while it still points
// at conn. A disconnect that races with a superseding login is therefore a
// no-op and reports false.
func (r *Registry) Unregister(identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[identity] != conn {
		return false
	}
	delete(r.conns, identity)
	return true
}

// Lookup returns the live connection for identity, or nil when the user is
// not currently reachable. Absence is a normal branch, not an error.
func (r *Registry) Lookup(identity string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[identity]
}

// Len reports how many identities are currently connected.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll empties the registry and closes every connection it held. Used
// on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
