package gateway

import (
	"log"
	"sync"
)

// DuplexConn is the minimal surface the registry needs from a real-time
// connection. *clientConn satisfies it in production; tests use fakes.
type DuplexConn interface {
	WriteJSON(v any) error
	Close() error
}

// ConnectionRegistry maps session ids to their live duplex connections for
// real-time fan-out. It is mutated both by connection handlers and by
// broadcast-driven cleanup, so every mutation holds the single mutex.
type ConnectionRegistry struct {
	mu       sync.Mutex
	sessions map[string]map[DuplexConn]struct{}
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{sessions: make(map[string]map[DuplexConn]struct{})}
}

// Register adds a connection to its session's set, creating the session entry
// on first connect.
func (r *ConnectionRegistry) Register(sessionID string, conn DuplexConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[sessionID]
	if !ok {
		set = make(map[DuplexConn]struct{})
		r.sessions[sessionID] = set
	}
	set[conn] = struct{}{}
}

// Deregister removes a connection; when the session's set becomes empty the
// session key itself is deleted.
func (r *ConnectionRegistry) Deregister(sessionID string, conn DuplexConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.sessions, sessionID)
	}
}

// Broadcast sends a message to every connection of the given session, or to
// every connection in every session when sessionID is empty. Sends happen on
// a snapshot taken under the lock; connections that fail to receive are
// removed after the pass completes, never while iterating the live set.
func (r *ConnectionRegistry) Broadcast(msg any, sessionID string) {
	type target struct {
		session string
		conn    DuplexConn
	}

	r.mu.Lock()
	var targets []target
	if sessionID != "" {
		for conn := range r.sessions[sessionID] {
			targets = append(targets, target{sessionID, conn})
		}
	} else {
		for sid, set := range r.sessions {
			for conn := range set {
				targets = append(targets, target{sid, conn})
			}
		}
	}
	r.mu.Unlock()

	var dead []target
	for _, tg := range targets {
		if err := tg.conn.WriteJSON(msg); err != nil {
			log.Printf("[Gateway] Broadcast send failed for session '%s': %v", tg.session, err)
			dead = append(dead, tg)
		}
	}

	for _, tg := range dead {
		r.Deregister(tg.session, tg.conn)
	}
}

// Sessions returns the number of sessions with at least one live connection.
func (r *ConnectionRegistry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Connections returns the total number of live connections.
func (r *ConnectionRegistry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, set := range r.sessions {
		total += len(set)
	}
	return total
}
