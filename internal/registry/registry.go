// Package registry tracks the live transport connections and the room and
// user each one belongs to.
//
// A Registry is not safe for concurrent use. It is owned by the hub's event
// loop, which is the only goroutine that touches it.
package registry

import (
	"github.com/google/uuid"

	"github.com/netaamz/moveo-project/internal/events"
)

type ConnID string

// Connection is the bookkeeping for one transport connection. Room and
// UserID are empty until the client joins.
type Connection struct {
	ID     ConnID
	Room   string
	UserID string
}

type Registry struct {
	conns map[ConnID]*Connection
	newID func() ConnID
}

func New() *Registry {
	return &Registry{
		conns: make(map[ConnID]*Connection),
		newID: func() ConnID { return ConnID(uuid.NewString()) },
	}
}

// OnConnect allocates a connection with no room or user yet.
func (r *Registry) OnConnect() ConnID {
	id := r.newID()
	r.conns[id] = &Connection{ID: id}
	return id
}

// OnJoin places the connection in the lobby under userID. Joining again
// overwrites the user. Unknown connections are ignored.
func (r *Registry) OnJoin(id ConnID, userID string) {
	r.JoinRoom(id, userID, events.Lobby)
}

// JoinRoom is OnJoin with an explicit room.
func (r *Registry) JoinRoom(id ConnID, userID, room string) {
	c, ok := r.conns[id]
	if !ok {
		return
	}
	c.Room = room
	c.UserID = userID
}

// OnDisconnect forgets the connection. When it was in a room other than the
// lobby, the returned user-left event is to be delivered to that room's
// remaining members; ok is false otherwise, and for unknown connections.
func (r *Registry) OnDisconnect(id ConnID) (left events.Event, ok bool) {
	c, found := r.conns[id]
	if !found {
		return events.Event{}, false
	}
	delete(r.conns, id)
	if c.Room == "" || c.Room == events.Lobby {
		return events.Event{}, false
	}
	return events.UserLeft(c.Room, c.UserID), true
}

func (r *Registry) Get(id ConnID) (Connection, bool) {
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// Members returns the IDs of connections currently in room.
func (r *Registry) Members(room string) []ConnID {
	var ids []ConnID
	for id, c := range r.conns {
		if c.Room == room {
			ids = append(ids, id)
		}
	}
	return ids
}

// All returns the IDs of every tracked connection, joined or not.
func (r *Registry) All() []ConnID {
	ids := make([]ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Len() int {
	return len(r.conns)
}
