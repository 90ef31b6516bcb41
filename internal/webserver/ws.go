package webserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netaamz/moveo-project/internal/db"
	"github.com/netaamz/moveo-project/internal/events"
	"github.com/netaamz/moveo-project/internal/hub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// StoreAuthorizer resolves publishers against the account table so that the
// role used for admin checks is always the stored one.
type StoreAuthorizer struct {
	store *db.DB
}

func NewAuthorizer(store *db.DB) *StoreAuthorizer {
	return &StoreAuthorizer{store: store}
}

func (a *StoreAuthorizer) Authorize(_ context.Context, accountID string) (hub.Identity, error) {
	acc, err := a.store.GetAccount(accountID)
	if errors.Is(err, db.ErrNotFound) {
		return hub.Identity{}, hub.ErrUnauthenticated
	} else if err != nil {
		return hub.Identity{}, err
	}
	return hub.Identity{
		AccountID:  acc.ID,
		Username:   acc.Username,
		Instrument: string(acc.Instrument),
		IsAdmin:    acc.IsAdmin,
	}, nil
}

// wsPeer is the hub's handle on one websocket client. Frames queued with
// Send are written by writePump.
type wsPeer struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func (p *wsPeer) Send(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *wsPeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if len(s.cfg.AllowedOrigins) == 0 {
		return strings.EqualFold(u.Host, r.Host)
	}
	return slices.Contains(s.cfg.AllowedOrigins, u.Host)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("webserver: websocket upgrade failed", "err", err)
		return
	}

	peer := &wsPeer{conn: conn, send: make(chan []byte, s.cfg.SendBuffer)}
	id, err := s.hub.Connect(peer)
	if err != nil {
		s.logger.Warn("webserver: hub unavailable", "err", err)
		conn.Close()
		return
	}
	from := hub.Publisher{Conn: id, AccountID: acc.ID}

	go s.writePump(peer)
	s.readPump(r.Context(), peer, from, acc.Username)
}

// readPump forwards inbound frames to the hub until the connection fails.
// Rejections are reported back to this client only.
func (s *Server) readPump(ctx context.Context, p *wsPeer, from hub.Publisher, username string) {
	defer func() {
		s.hub.Disconnect(from.Conn)
		p.conn.Close()
	}()
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("webserver: websocket read", "conn", string(from.Conn), "err", err)
			}
			return
		}
		e, err := events.Decode(data)
		if err != nil {
			s.logger.Debug("webserver: malformed frame ignored", "conn", string(from.Conn), "err", err)
			continue
		}
		if e.Type == events.TypeJoin && e.UserID == "" {
			e.UserID = username
		}
		if err := s.hub.Handle(ctx, from, e); err != nil {
			s.logger.Info("webserver: frame rejected", "conn", string(from.Conn), "type", string(e.Type), "err", err)
			if frame, encErr := events.Encode(events.Error(hub.ErrorCode(err), err.Error())); encErr == nil {
				p.Send(frame)
			}
		}
	}
}

// writePump drains the peer's send buffer onto the socket and keeps the
// connection alive with pings. It exits once the hub closes the peer.
func (s *Server) writePump(p *wsPeer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
