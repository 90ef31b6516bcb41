package registry_test

import (
	"testing"

	"github.com/netaamz/moveo-project/internal/events"
	"github.com/netaamz/moveo-project/internal/registry"
)

func TestRegistry_SizeTracksOpenConnections(t *testing.T) {
	r := registry.New()

	var ids []registry.ConnID
	for i := 0; i < 5; i++ {
		id := r.OnConnect()
		r.OnJoin(id, "user")
		ids = append(ids, id)
	}
	if r.Len() != 5 {
		t.Fatalf("expected 5 connections, got %d", r.Len())
	}

	r.OnDisconnect(ids[1])
	r.OnDisconnect(ids[3])
	if r.Len() != 3 {
		t.Errorf("expected 3 after two disconnects, got %d", r.Len())
	}

	// Disconnecting twice or an unknown ID changes nothing.
	r.OnDisconnect(ids[1])
	r.OnDisconnect("nope")
	if r.Len() != 3 {
		t.Errorf("expected 3 after no-op disconnects, got %d", r.Len())
	}
}

func TestRegistry_ConnectIDsUnique(t *testing.T) {
	r := registry.New()
	seen := map[registry.ConnID]bool{}
	for i := 0; i < 100; i++ {
		id := r.OnConnect()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestRegistry_JoinSetsLobbyAndOverwritesUser(t *testing.T) {
	r := registry.New()
	id := r.OnConnect()

	c, _ := r.Get(id)
	if c.Room != "" || c.UserID != "" {
		t.Fatalf("fresh connection should have no room/user: %+v", c)
	}

	r.OnJoin(id, "alice")
	c, _ = r.Get(id)
	if c.Room != events.Lobby || c.UserID != "alice" {
		t.Errorf("after join: %+v", c)
	}

	r.OnJoin(id, "bob")
	c, _ = r.Get(id)
	if c.UserID != "bob" {
		t.Errorf("second join should overwrite user, got %q", c.UserID)
	}
}

func TestRegistry_JoinUnknownIsNoop(t *testing.T) {
	r := registry.New()
	r.OnJoin("ghost", "alice")
	if r.Len() != 0 {
		t.Errorf("join must not create entries, got %d", r.Len())
	}
}

func TestRegistry_DisconnectFromLobbyEmitsNothing(t *testing.T) {
	r := registry.New()

	joined := r.OnConnect()
	r.OnJoin(joined, "alice")
	if _, ok := r.OnDisconnect(joined); ok {
		t.Error("lobby member disconnect should not emit user-left")
	}

	never := r.OnConnect()
	if _, ok := r.OnDisconnect(never); ok {
		t.Error("unjoined disconnect should not emit user-left")
	}
}

func TestRegistry_DisconnectFromRoomEmitsUserLeft(t *testing.T) {
	r := registry.New()
	a := r.OnConnect()
	b := r.OnConnect()
	r.JoinRoom(a, "alice", "rehearsal-1")
	r.JoinRoom(b, "bob", "rehearsal-1")

	left, ok := r.OnDisconnect(a)
	if !ok {
		t.Fatal("expected user-left notification")
	}
	if left.Type != events.TypeUserLeft || left.Room != "rehearsal-1" || left.UserID != "alice" {
		t.Errorf("unexpected notification: %+v", left)
	}
	if _, found := r.Get(a); found {
		t.Error("entry should be removed")
	}
	members := r.Members("rehearsal-1")
	if len(members) != 1 || members[0] != b {
		t.Errorf("remaining members: %v", members)
	}
}

func TestRegistry_MembersAndAll(t *testing.T) {
	r := registry.New()
	a := r.OnConnect()
	b := r.OnConnect()
	r.OnConnect() // never joins
	r.OnJoin(a, "alice")
	r.OnJoin(b, "bob")

	if got := len(r.Members(events.Lobby)); got != 2 {
		t.Errorf("lobby members: got %d want 2", got)
	}
	if got := len(r.All()); got != 3 {
		t.Errorf("all: got %d want 3", got)
	}
}
