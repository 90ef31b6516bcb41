package live_test

import (
	"errors"
	"testing"
	"time"

	"github.com/netaamz/moveo-project/internal/applog"
	"github.com/netaamz/moveo-project/internal/db"
	"github.com/netaamz/moveo-project/internal/events"
	"github.com/netaamz/moveo-project/internal/live"
)

type recordingPublisher struct {
	sent chan events.Event
	err  error
}

func newPublisher() *recordingPublisher {
	return &recordingPublisher{sent: make(chan events.Event, 16)}
}

func (p *recordingPublisher) Publish(e events.Event) error {
	p.sent <- e
	return p.err
}

type countingNavigator struct {
	calls chan struct{}
}

func newNavigator() *countingNavigator {
	return &countingNavigator{calls: make(chan struct{}, 16)}
}

func (n *countingNavigator) ToIdle() { n.calls <- struct{}{} }

func (n *countingNavigator) expect(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-n.calls:
	case <-time.After(within):
		t.Fatal("expected a navigation to idle")
	}
}

func (n *countingNavigator) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-n.calls:
		t.Fatal("unexpected navigation to idle")
	case <-time.After(within):
	}
}

var (
	admin  = live.User{Username: "admin", Instrument: db.InstrumentKeyboards, IsAdmin: true}
	player = live.User{Username: "drummer_mike", Instrument: db.InstrumentDrums}
)

func newMachine(user live.User, pub live.Publisher, nav live.Navigator) *live.Machine {
	return live.New(user, pub, nav, applog.Discard(), live.WithNavigateDelay(10*time.Millisecond))
}

func TestMachine_StartsWaiting(t *testing.T) {
	m := newMachine(player, newPublisher(), newNavigator())
	if got := m.State().Phase; got != live.Waiting {
		t.Errorf("initial phase: %v", got)
	}
}

func TestMachine_SongSelectedGoesLive(t *testing.T) {
	m := newMachine(player, newPublisher(), newNavigator())
	m.Apply(events.SongSelected("r1", "s1", "Hey Jude", "The Beatles"))

	s := m.State()
	if s.Phase != live.Live || s.RehearsalID != "r1" {
		t.Fatalf("unexpected state: %+v", s)
	}
	want := live.Song{ID: "s1", Title: "Hey Jude", Artist: "The Beatles"}
	if s.Song.ID != want.ID || s.Song.Title != want.Title || s.Song.Artist != want.Artist {
		t.Errorf("song: got %+v want %+v", s.Song, want)
	}
}

func TestMachine_SongSelectedOverwrites(t *testing.T) {
	m := newMachine(player, newPublisher(), newNavigator())
	m.Apply(events.SongSelected("r1", "s1", "Hey Jude", "The Beatles"))
	m.Apply(events.SongSelected("r2", "s2", "Let It Be", "The Beatles"))

	s := m.State()
	if s.Song.ID != "s2" || s.RehearsalID != "r2" {
		t.Errorf("expected last write to win, got %+v", s)
	}
}

func TestMachine_SessionEndedNavigatesAfterDelay(t *testing.T) {
	nav := newNavigator()
	m := live.New(player, newPublisher(), nav, applog.Discard(), live.WithNavigateDelay(50*time.Millisecond))
	m.Apply(events.SongSelected("r1", "s1", "Hey Jude", "The Beatles"))
	m.Apply(events.SessionEnded("r1"))

	if got := m.State().Phase; got != live.Waiting {
		t.Fatalf("phase after end: %v", got)
	}
	nav.expectNone(t, 20*time.Millisecond)
	nav.expect(t, time.Second)
}

func TestMachine_SessionEndedWhileWaitingDoesNothing(t *testing.T) {
	nav := newNavigator()
	m := newMachine(player, newPublisher(), nav)

	m.Apply(events.SessionEnded("r1"))
	if got := m.State().Phase; got != live.Waiting {
		t.Errorf("phase: %v", got)
	}
	nav.expectNone(t, 50*time.Millisecond)
}

func TestMachine_NewSongCancelsPendingNavigation(t *testing.T) {
	nav := newNavigator()
	m := live.New(player, newPublisher(), nav, applog.Discard(), live.WithNavigateDelay(50*time.Millisecond))
	m.Apply(events.SongSelected("r1", "s1", "Hey Jude", "The Beatles"))
	m.Apply(events.SessionEnded("r1"))
	m.Apply(events.SongSelected("r2", "s2", "Let It Be", "The Beatles"))

	nav.expectNone(t, 100*time.Millisecond)
	if got := m.State().Phase; got != live.Live {
		t.Errorf("phase: %v", got)
	}
}

func TestMachine_SelectSong(t *testing.T) {
	pub := newPublisher()
	m := newMachine(admin, pub, newNavigator())

	song := live.Song{ID: "s1", Title: "Hey Jude", Artist: "The Beatles", Content: []db.Line{{{Lyrics: "Hey"}}}}
	if err := m.SelectSong("r1", song); err != nil {
		t.Fatal(err)
	}
	s := m.State()
	if s.Phase != live.Live || s.Song.Content == nil {
		t.Errorf("admin should go live with the song in hand: %+v", s)
	}

	e := <-pub.sent
	if e.Type != events.TypeSongSelected || e.SongID != "s1" || e.RehearsalID != "r1" {
		t.Errorf("published: %+v", e)
	}
}

func TestMachine_AdminActionsRejectedForPlayers(t *testing.T) {
	pub := newPublisher()
	m := newMachine(player, pub, newNavigator())

	if err := m.SelectSong("r1", live.Song{ID: "s1"}); !errors.Is(err, live.ErrNotAdmin) {
		t.Errorf("SelectSong: expected ErrNotAdmin, got %v", err)
	}
	if err := m.EndSession(); !errors.Is(err, live.ErrNotAdmin) {
		t.Errorf("EndSession: expected ErrNotAdmin, got %v", err)
	}
	if m.State().Phase != live.Waiting {
		t.Error("rejected actions must not change state")
	}
	select {
	case e := <-pub.sent:
		t.Errorf("nothing should be published, got %+v", e)
	default:
	}
}

func TestMachine_EndSessionIsOptimistic(t *testing.T) {
	pub := newPublisher()
	nav := newNavigator()
	m := newMachine(admin, pub, nav)
	m.Apply(events.SongSelected("r1", "s1", "Hey Jude", "The Beatles"))

	if err := m.EndSession(); err != nil {
		t.Fatal(err)
	}
	// Cleared and navigated before the bus has echoed anything back.
	if m.State().Phase != live.Waiting {
		t.Error("expected waiting immediately")
	}
	nav.expect(t, 5*time.Millisecond)

	select {
	case e := <-pub.sent:
		if e.Type != events.TypeSessionEnded || e.RehearsalID != "r1" {
			t.Errorf("published: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("session-ended was never published")
	}

	// The echo of our own broadcast finds us waiting and does nothing.
	m.Apply(events.SessionEnded("r1"))
	nav.expectNone(t, 50*time.Millisecond)
}

func TestMachine_SetContent(t *testing.T) {
	var changes []live.State
	m := live.New(player, newPublisher(), newNavigator(), applog.Discard(),
		live.WithOnChange(func(s live.State) { changes = append(changes, s) }))

	if m.SetContent("s1", []db.Line{{{Lyrics: "Hey"}}}) {
		t.Error("content must not attach while waiting")
	}
	m.Apply(events.SongSelected("r1", "s1", "Hey Jude", "The Beatles"))
	if m.SetContent("other", []db.Line{{{Lyrics: "x"}}}) {
		t.Error("content for a stale song must be ignored")
	}
	if !m.SetContent("s1", []db.Line{{{Lyrics: "Hey"}}}) {
		t.Fatal("expected content to attach")
	}
	if len(m.State().Song.Content) != 1 {
		t.Errorf("content: %+v", m.State().Song.Content)
	}
	if len(changes) != 2 {
		t.Errorf("expected 2 change notifications, got %d", len(changes))
	}
}

func TestMachine_LeaveIsLocal(t *testing.T) {
	pub := newPublisher()
	nav := newNavigator()
	m := newMachine(player, pub, nav)
	m.Apply(events.SongSelected("r1", "s1", "Hey Jude", "The Beatles"))

	m.Leave()
	if m.State().Phase != live.Waiting {
		t.Error("expected waiting after leave")
	}
	nav.expect(t, 5*time.Millisecond)
	select {
	case e := <-pub.sent:
		t.Errorf("leave must not publish, got %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMachine_IgnoresOtherEvents(t *testing.T) {
	m := newMachine(player, newPublisher(), newNavigator())
	m.Apply(events.UserLeft("room", "bob"))
	m.Apply(events.Error(events.CodeUnauthorized, "no"))
	if m.State().Phase != live.Waiting {
		t.Error("unrelated events must not change state")
	}
}
