// Package live holds the per-client view of the rehearsal: either waiting
// for a song or showing one. The state is local to each client and is driven
// by broadcast events and by the admin's own actions.
package live

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/netaamz/moveo-project/internal/db"
	"github.com/netaamz/moveo-project/internal/events"
)

// DefaultNavigateDelay keeps the idle navigation from racing a navigation
// that is already in flight.
const DefaultNavigateDelay = 100 * time.Millisecond

// ErrNotAdmin is returned for admin actions when the cached role says no.
// The server re-checks the role before fanning anything out.
var ErrNotAdmin = errors.New("admin only")

type Phase int

const (
	Waiting Phase = iota
	Live
)

func (p Phase) String() string {
	if p == Live {
		return "live"
	}
	return "waiting"
}

// Song is what the live view knows about the current song. Content is nil
// until the lyrics/chords document has been fetched.
type Song struct {
	ID      string
	Title   string
	Artist  string
	Content []db.Line
}

type State struct {
	Phase       Phase
	Song        Song
	RehearsalID string
}

// User is the locally cached account of this client.
type User struct {
	Username   string
	Instrument db.Instrument
	IsAdmin    bool
}

// Publisher forwards an event to the broadcast bus.
type Publisher interface {
	Publish(e events.Event) error
}

// Navigator performs the return to the idle screen.
type Navigator interface {
	ToIdle()
}

type NavigatorFunc func()

func (f NavigatorFunc) ToIdle() { f() }

type Machine struct {
	mu       sync.Mutex
	state    State
	user     User
	pub      Publisher
	nav      Navigator
	delay    time.Duration
	pending  *time.Timer
	onChange func(State)
	logger   *slog.Logger
}

type Option func(*Machine)

func WithNavigateDelay(d time.Duration) Option {
	return func(m *Machine) { m.delay = d }
}

// WithOnChange registers fn to receive the new state after each transition.
func WithOnChange(fn func(State)) Option {
	return func(m *Machine) { m.onChange = fn }
}

func New(user User, pub Publisher, nav Navigator, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		user:   user,
		pub:    pub,
		nav:    nav,
		delay:  DefaultNavigateDelay,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) User() User {
	return m.user
}

// Apply reacts to an event received from the bus.
func (m *Machine) Apply(e events.Event) {
	switch e.Type {
	case events.TypeSongSelected:
		m.goLive(Song{ID: e.SongID, Title: e.SongTitle, Artist: e.SongArtist}, e.RehearsalID)
	case events.TypeSessionEnded:
		if m.endLocally(false) {
			m.logger.Info("live: session ended, returning to waiting", "rehearsal", e.RehearsalID)
		}
	case events.TypeError:
		m.logger.Warn("live: server rejected action", "code", string(e.Code), "message", e.Message)
	default:
		m.logger.Debug("live: ignored event", "type", string(e.Type))
	}
}

// SelectSong is the admin choosing song from search results. The view goes
// live at once with the data in hand; the selection is then sent to the bus
// and will come back as a broadcast like it does for everyone else.
func (m *Machine) SelectSong(rehearsalID string, song Song) error {
	if !m.user.IsAdmin {
		return ErrNotAdmin
	}
	m.goLive(song, rehearsalID)
	return m.pub.Publish(events.SongSelected(rehearsalID, song.ID, song.Title, song.Artist))
}

// EndSession is the admin quitting the live view. Local state is cleared
// and the idle screen shown immediately; SessionEnded is published in the
// background.
func (m *Machine) EndSession() error {
	if !m.user.IsAdmin {
		return ErrNotAdmin
	}
	m.mu.Lock()
	rehearsalID := m.state.RehearsalID
	m.mu.Unlock()

	m.endLocally(true)
	go func() {
		if err := m.pub.Publish(events.SessionEnded(rehearsalID)); err != nil {
			m.logger.Warn("live: publish session-ended failed", "rehearsal", rehearsalID, "err", err)
		}
	}()
	return nil
}

// Leave drops back to the idle screen for this client only. Nothing is
// published; the rest of the band stays where it is.
func (m *Machine) Leave() {
	m.endLocally(true)
}

// SetContent attaches the fetched document to the live song, provided the
// song is still the current one.
func (m *Machine) SetContent(songID string, content []db.Line) bool {
	m.mu.Lock()
	if m.state.Phase != Live || m.state.Song.ID != songID {
		m.mu.Unlock()
		return false
	}
	m.state.Song.Content = content
	s := m.state
	m.mu.Unlock()
	m.changed(s)
	return true
}

func (m *Machine) goLive(song Song, rehearsalID string) {
	m.mu.Lock()
	if m.pending != nil {
		// A newer selection supersedes a scheduled return to idle.
		m.pending.Stop()
		m.pending = nil
	}
	m.state = State{Phase: Live, Song: song, RehearsalID: rehearsalID}
	s := m.state
	m.mu.Unlock()
	m.changed(s)
}

// endLocally moves to Waiting. A remote end navigates after the delay, a
// local one right away. It reports false, and does nothing, when already
// waiting.
func (m *Machine) endLocally(immediate bool) bool {
	m.mu.Lock()
	if m.state.Phase != Live {
		m.mu.Unlock()
		return false
	}
	m.state = State{Phase: Waiting}
	s := m.state
	if !immediate {
		m.pending = time.AfterFunc(m.delay, m.navigate)
	}
	m.mu.Unlock()

	m.changed(s)
	if immediate {
		m.nav.ToIdle()
	}
	return true
}

func (m *Machine) navigate() {
	m.mu.Lock()
	m.pending = nil
	waiting := m.state.Phase == Waiting
	m.mu.Unlock()
	if waiting {
		m.nav.ToIdle()
	}
}

func (m *Machine) changed(s State) {
	if m.onChange != nil {
		m.onChange(s)
	}
}
