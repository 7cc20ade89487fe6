package websocket

import (
	"sync"
)

// Registry tracks live connections with three indexes: by connection id, by
// announced user id (a user may hold several simultaneous connections), and a
// maintained room reverse index so room fan-out is O(room size) instead of a
// scan over every connection.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connID -> Connection
	userConns   map[string]map[string]*Connection // userID -> connID -> Connection
	roomConns   map[string]map[string]*Connection // roomID -> connID -> Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		userConns:   make(map[string]map[string]*Connection),
		roomConns:   make(map[string]map[string]*Connection),
	}
}

// Add registers a freshly accepted connection. Connections start anonymous;
// the user index is populated later by Identify.
func (r *Registry) Add(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Identify indexes a connection under its announced user id. Called after
// SetIdentity; repeat announcements are harmless.
func (r *Registry) Identify(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	userID := conn.UserID()
	if userID == "" {
		return ErrNotIdentified
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userConns[userID] == nil {
		r.userConns[userID] = make(map[string]*Connection)
	}
	r.userConns[userID][conn.ID()] = conn
	return nil
}

// JoinRoom adds the connection to a room and updates the reverse index.
// Returns false when the connection was already a member.
func (r *Registry) JoinRoom(conn *Connection, roomID string) bool {
	if conn == nil {
		return false
	}
	if !conn.addRoom(roomID) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roomConns[roomID] == nil {
		r.roomConns[roomID] = make(map[string]*Connection)
	}
	r.roomConns[roomID][conn.ID()] = conn
	return true
}

// LeaveRoom removes the connection from a room. Returns false when the
// connection was not a member.
func (r *Registry) LeaveRoom(conn *Connection, roomID string) bool {
	if conn == nil {
		return false
	}
	if !conn.removeRoom(roomID) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromRoomLocked(conn.ID(), roomID)
	return true
}

// Remove drops a connection from every index. Idempotent; called on the
// disconnect path regardless of how the connection ended.
func (r *Registry) Remove(conn *Connection) {
	if conn == nil {
		return
	}
	connID := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[connID]
	if !exists || registered != conn {
		return
	}
	delete(r.connections, connID)

	if userID := conn.UserID(); userID != "" {
		if conns, ok := r.userConns[userID]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(r.userConns, userID)
			}
		}
	}

	for _, roomID := range conn.Rooms() {
		r.removeFromRoomLocked(connID, roomID)
	}
}

func (r *Registry) removeFromRoomLocked(connID, roomID string) {
	if members, ok := r.roomConns[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.roomConns, roomID)
		}
	}
}

// Get returns a connection by id.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

// All returns every live connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// UserConnections returns every live connection announced by the given user.
// The result is empty, never nil-checked specially, when the user has no
// live connections.
func (r *Registry) UserConnections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var conns []*Connection
	for _, conn := range r.userConns[userID] {
		conns = append(conns, conn)
	}
	return conns
}

// RoomConnections returns every connection whose room set contains roomID.
func (r *Registry) RoomConnections(roomID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var conns []*Connection
	for _, conn := range r.roomConns[roomID] {
		conns = append(conns, conn)
	}
	return conns
}

// RoomSize returns the current member count of a room.
func (r *Registry) RoomSize(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomConns[roomID])
}

// Stats reports registry counters for the health and diagnostics endpoints.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"connections":      len(r.connections),
		"identified_users": len(r.userConns),
		"active_rooms":     len(r.roomConns),
	}
}
