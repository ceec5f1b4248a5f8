package notify

import "sync"

// Registry is the live user↔connection mapping. Both directions are updated
// under one mutex so no reader ever observes a half-registered connection.
type Registry struct {
	mu          sync.Mutex
	connsByUser map[string]map[string]struct{}
	userByConn  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		connsByUser: make(map[string]map[string]struct{}),
		userByConn:  make(map[string]string),
	}
}

// Register associates a connection with a user. Registering the same pair
// twice is a no-op. If the connection id is already registered to a different
// user, it is moved: removed from the old user first, then added to the new
// one, all under the same lock.
func (r *Registry) Register(userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.userByConn[connectionID]; ok {
		if previous == userID {
			return
		}
		r.removeLocked(previous, connectionID)
	}

	conns, ok := r.connsByUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.connsByUser[userID] = conns
	}
	conns[connectionID] = struct{}{}
	r.userByConn[connectionID] = userID
}

// Unregister removes a connection. The owning user's entry goes away entirely
// once its last connection is gone. Unknown connection ids are ignored.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByConn[connectionID]
	if !ok {
		return
	}
	r.removeLocked(userID, connectionID)
}

func (r *Registry) removeLocked(userID, connectionID string) {
	delete(r.userByConn, connectionID)
	conns, ok := r.connsByUser[userID]
	if !ok {
		return
	}
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(r.connsByUser, userID)
	}
}

// ConnectionsFor returns a snapshot of the user's live connection ids. The
// registry may change the moment this returns; callers must tolerate sends to
// connections that have since disconnected.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.connsByUser[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// UserFor returns the user a connection is registered to, if any.
func (r *Registry) UserFor(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByConn[connectionID]
	return userID, ok
}
