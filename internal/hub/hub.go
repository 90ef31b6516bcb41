// Package hub fans live-session events out to every connected client.
//
// All bookkeeping happens on a single goroutine (Run). Connect, join,
// publish and disconnect are queued as messages and each runs to completion
// before the next, so the connection registry needs no locking. Delivery is
// at-most-once and best-effort: a peer that cannot take a frame right now
// misses it, and nothing is reported back to the publisher.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/netaamz/moveo-project/internal/events"
	"github.com/netaamz/moveo-project/internal/registry"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("admin role required")
	ErrBadFrame        = errors.New("unsupported frame")
	ErrStopped         = errors.New("hub stopped")
)

// Peer is the outbound side of one transport connection.
type Peer interface {
	// Send queues frame without blocking. It reports false when the peer is
	// closed or its buffer is full; the frame is then dropped.
	Send(frame []byte) bool
	// Close releases the peer. It must be safe to call more than once.
	Close()
}

// Identity is what the credential store knows about a publisher.
type Identity struct {
	AccountID  string
	Username   string
	Instrument string
	IsAdmin    bool
}

// Authorizer resolves an account against the credential store. It returns
// ErrUnauthenticated when the account does not exist.
type Authorizer interface {
	Authorize(ctx context.Context, accountID string) (Identity, error)
}

// Publisher identifies who sent an inbound frame.
type Publisher struct {
	Conn      registry.ConnID
	AccountID string
}

type Hub struct {
	reg      *registry.Registry
	peers    map[registry.ConnID]Peer
	inbox    chan message
	stopped  chan struct{}
	auth     Authorizer
	observer func(events.Event)
	logger   *slog.Logger
}

type Option func(*Hub)

// WithObserver registers fn to see every event after it has been fanned
// out. fn runs on the hub goroutine and must not block.
func WithObserver(fn func(events.Event)) Option {
	return func(h *Hub) { h.observer = fn }
}

func New(auth Authorizer, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		reg:     registry.New(),
		peers:   make(map[registry.ConnID]Peer),
		inbox:   make(chan message, 256),
		stopped: make(chan struct{}),
		auth:    auth,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes queued messages until ctx is done, then closes every peer.
// It is called once per Hub.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case m := <-h.inbox:
			m.apply(h)
		}
	}
}

func (h *Hub) shutdown() {
	for id, p := range h.peers {
		p.Close()
		h.reg.OnDisconnect(id)
		delete(h.peers, id)
	}
	h.logger.Info("hub: stopped")
}

func (h *Hub) enqueue(m message) bool {
	select {
	case <-h.stopped:
		return false
	default:
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.stopped:
		return false
	}
}

// Connect registers peer and returns its connection ID.
func (h *Hub) Connect(p Peer) (registry.ConnID, error) {
	reply := make(chan registry.ConnID, 1)
	if !h.enqueue(connectMsg{peer: p, reply: reply}) {
		return "", ErrStopped
	}
	select {
	case id := <-reply:
		return id, nil
	case <-h.stopped:
		return "", ErrStopped
	}
}

func (h *Hub) Join(id registry.ConnID, userID string) {
	h.enqueue(joinMsg{id: id, userID: userID})
}

// Disconnect forgets the connection and closes its peer. Unknown IDs are
// ignored.
func (h *Hub) Disconnect(id registry.ConnID) {
	h.enqueue(disconnectMsg{id: id})
}

// PublishSongSelected checks that the publisher is an admin and then fans
// the event out to every connection, the publisher's included.
func (h *Hub) PublishSongSelected(ctx context.Context, from Publisher, rehearsalID, songID, songTitle, songArtist string) error {
	return h.publish(ctx, from, events.SongSelected(rehearsalID, songID, songTitle, songArtist))
}

// PublishSessionEnded is PublishSongSelected for the session-ended event.
func (h *Hub) PublishSessionEnded(ctx context.Context, from Publisher, rehearsalID string) error {
	return h.publish(ctx, from, events.SessionEnded(rehearsalID))
}

// publish authorizes on the caller's goroutine so credential-store I/O
// never stalls the loop.
func (h *Hub) publish(ctx context.Context, from Publisher, e events.Event) error {
	if from.AccountID == "" {
		return ErrUnauthenticated
	}
	id, err := h.auth.Authorize(ctx, from.AccountID)
	if err != nil {
		return err
	}
	if !id.IsAdmin {
		return ErrUnauthorized
	}
	if !h.enqueue(publishMsg{from: from.Conn, event: e}) {
		return ErrStopped
	}
	return nil
}

// Handle dispatches one decoded inbound frame.
func (h *Hub) Handle(ctx context.Context, from Publisher, e events.Event) error {
	switch e.Type {
	case events.TypeJoin:
		h.Join(from.Conn, e.UserID)
		return nil
	case events.TypeSongSelected:
		return h.PublishSongSelected(ctx, from, e.RehearsalID, e.SongID, e.SongTitle, e.SongArtist)
	case events.TypeSessionEnded:
		return h.PublishSessionEnded(ctx, from, e.RehearsalID)
	default:
		return fmt.Errorf("%w: %s", ErrBadFrame, e.Type)
	}
}

// Len reports the number of registered connections.
func (h *Hub) Len() int {
	reply := make(chan int, 1)
	if !h.enqueue(countMsg{reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.stopped:
		return 0
	}
}

// ErrorCode maps a Handle/Publish error to the code reported to the client.
func ErrorCode(err error) events.Code {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return events.CodeUnauthenticated
	case errors.Is(err, ErrUnauthorized):
		return events.CodeUnauthorized
	case errors.Is(err, ErrStopped):
		return events.CodeTransportUnavailable
	default:
		return events.CodeBadRequest
	}
}
