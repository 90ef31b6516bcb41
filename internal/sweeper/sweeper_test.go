package sweeper_test

import (
	"errors"
	"testing"
	"time"

	"github.com/netaamz/moveo-project/internal/applog"
	"github.com/netaamz/moveo-project/internal/db"
	"github.com/netaamz/moveo-project/internal/sweeper"
)

func openDB(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTokens(t *testing.T, store *db.DB, now time.Time) {
	t.Helper()
	acc, err := store.CreateAccount("alice", "hash", db.InstrumentGuitar, false)
	if err != nil {
		t.Fatal(err)
	}
	for token, exp := range map[string]time.Time{
		"old":   now.Add(-time.Hour),
		"older": now.Add(-48 * time.Hour),
		"fresh": now.Add(time.Hour),
	} {
		if err := store.SaveRefreshToken(db.RefreshToken{Token: token, AccountID: acc.ID, ExpiresAt: exp, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunOnce_PurgesExpired(t *testing.T) {
	store := openDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedTokens(t, store, now)

	s := sweeper.NewWithClock(store, applog.Discard(), func() time.Time { return now })
	if n := s.RunOnce(); n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}
	if _, err := store.GetRefreshToken("fresh"); err != nil {
		t.Errorf("unexpired token should survive: %v", err)
	}
	if _, err := store.GetRefreshToken("old"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expired token should be gone, got %v", err)
	}
	if n := s.RunOnce(); n != 0 {
		t.Errorf("second sweep should be a no-op, got %d", n)
	}
}

func TestStartStop(t *testing.T) {
	store := openDB(t)
	s := sweeper.New(store, time.Millisecond, applog.Discard())
	s.Start()
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	s.Stop()
}
