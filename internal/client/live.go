package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netaamz/moveo-project/internal/events"
	"github.com/netaamz/moveo-project/internal/live"
)

const writeWait = 10 * time.Second

var ErrMalformedFrame = errors.New("malformed frame")

// Conn is one websocket connection to the live channel. It implements
// live.Publisher.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens the live channel with the current access token, refreshing it
// once if the handshake is rejected as unauthenticated.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	tok := c.token()
	if tok == "" {
		return nil, errors.New("not logged in")
	}
	conn, err := c.dial(ctx, tok)
	if !IsStatus(err, http.StatusUnauthorized) {
		return conn, err
	}
	if rerr := c.refreshAfter(ctx, tok); rerr != nil {
		return nil, err
	}
	return c.dial(ctx, c.token())
}

func (c *Client) dial(ctx context.Context, tok string) (*Conn, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {tok}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	if tr, ok := c.http.Transport.(*http.Transport); ok && tr.TLSClientConfig != nil {
		dialer.TLSClientConfig = tr.TLSClientConfig.Clone()
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, fmt.Errorf("dial live channel: %w", err)
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) Publish(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(e)
}

// Join places this connection in the lobby under userID.
func (c *Conn) Join(userID string) error {
	return c.Publish(events.Join(userID))
}

// Next blocks for the next inbound event. A frame that does not decode
// yields ErrMalformedFrame and leaves the connection usable.
func (c *Conn) Next() (events.Event, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return events.Event{}, err
	}
	e, err := events.Decode(data)
	if err != nil {
		return events.Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return e, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.ws.Close()
}

// Follower feeds live channel events into a live.Machine and fetches the
// lyrics/chords document whenever a song goes live.
type Follower struct {
	api       *Client
	conn      *Conn
	machine   *live.Machine
	logger    *slog.Logger
	onFailure func(songID string, err error)
}

// NewFollower wires conn to m. onFailure, if set, is told when a song's
// document cannot be fetched; the machine has then already dropped back
// to waiting.
func NewFollower(api *Client, conn *Conn, m *live.Machine, logger *slog.Logger, onFailure func(songID string, err error)) *Follower {
	return &Follower{api: api, conn: conn, machine: m, logger: logger, onFailure: onFailure}
}

// Run reads until ctx is cancelled or the connection fails. Cancelling ctx
// closes the connection and returns nil.
func (f *Follower) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { f.conn.Close() })
	defer stop()

	for {
		e, err := f.conn.Next()
		if errors.Is(err, ErrMalformedFrame) {
			f.logger.Debug("client: ignoring frame", "err", err)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("live channel: %w", err)
		}
		f.machine.Apply(e)
		if e.Type == events.TypeSongSelected && e.SongID != "" {
			go f.hydrate(ctx, e.SongID)
		}
	}
}

func (f *Follower) hydrate(ctx context.Context, songID string) {
	song, err := f.api.GetSong(ctx, songID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("client: fetch song failed", "song", songID, "err", err)
		// Only leave if the failed song is still the one on screen.
		if s := f.machine.State(); s.Phase == live.Live && s.Song.ID == songID {
			f.machine.Leave()
		}
		if f.onFailure != nil {
			f.onFailure(songID, err)
		}
		return
	}
	f.machine.SetContent(songID, song.Content)
}
