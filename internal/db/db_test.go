package db_test

import (
	"errors"
	"testing"
	"time"

	"github.com/netaamz/moveo-project/internal/db"
)

func openDB(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMigrateTwice(t *testing.T) {
	store := openDB(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAccountCRUD(t *testing.T) {
	store := openDB(t)

	hash, err := db.HashPassword("admin123")
	if err != nil {
		t.Fatal(err)
	}
	acc, err := store.CreateAccount("  admin ", hash, db.InstrumentKeyboards, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.Username != "admin" {
		t.Errorf("username not trimmed: %q", acc.Username)
	}

	got, err := store.GetAccount(acc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsAdmin || got.Instrument != db.InstrumentKeyboards {
		t.Errorf("unexpected account: %+v", got)
	}

	got.Instrument = db.InstrumentVocals
	got.IsAdmin = false
	if err := store.UpdateAccount(got, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.GetAccountByUsername("admin")
	if got.Instrument != db.InstrumentVocals || got.IsAdmin {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := store.DeleteAccount(acc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetAccount(acc.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteAccount(acc.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestCreateAccount_Rejects(t *testing.T) {
	store := openDB(t)
	if _, err := store.CreateAccount("mike", "hash", db.InstrumentDrums, false); err != nil {
		t.Fatal(err)
	}

	if _, err := store.CreateAccount("mike", "hash", db.InstrumentBass, false); !errors.Is(err, db.ErrUsernameTaken) {
		t.Errorf("duplicate: expected ErrUsernameTaken, got %v", err)
	}
	if _, err := store.CreateAccount("jane", "hash", db.Instrument("kazoo"), false); !errors.Is(err, db.ErrInvalidInstrument) {
		t.Errorf("instrument: expected ErrInvalidInstrument, got %v", err)
	}
	if _, err := store.CreateAccount("   ", "hash", db.InstrumentBass, false); err == nil {
		t.Error("expected error for blank username")
	}
}

func TestFindAccountByCredentials(t *testing.T) {
	store := openDB(t)
	hash, _ := db.HashPassword("beats123")
	store.CreateAccount("drummer_mike", hash, db.InstrumentDrums, false)

	acc, err := store.FindAccountByCredentials("drummer_mike", "beats123")
	if err != nil {
		t.Fatalf("valid credentials: %v", err)
	}
	if acc.Username != "drummer_mike" {
		t.Errorf("got %q", acc.Username)
	}
	if _, err := store.FindAccountByCredentials("drummer_mike", "wrong"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("wrong password: expected ErrNotFound, got %v", err)
	}
	if _, err := store.FindAccountByCredentials("nobody", "beats123"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
}

func TestListAccounts_NewestFirst(t *testing.T) {
	store := openDB(t)
	store.CreateAccount("first", "h", db.InstrumentBass, false)
	time.Sleep(2 * time.Millisecond)
	store.CreateAccount("second", "h", db.InstrumentBass, false)

	accounts, err := store.ListAccounts()
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 || accounts[0].Username != "second" {
		t.Errorf("unexpected order: %v", accounts)
	}
}

func TestRefreshTokens(t *testing.T) {
	store := openDB(t)
	acc, _ := store.CreateAccount("alice", "h", db.InstrumentGuitar, false)
	now := time.Now()

	store.SaveRefreshToken(db.RefreshToken{Token: "live", AccountID: acc.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	store.SaveRefreshToken(db.RefreshToken{Token: "stale", AccountID: acc.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now})

	tok, err := store.GetRefreshToken("live")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccountID != acc.ID {
		t.Errorf("account: got %q", tok.AccountID)
	}

	n, err := store.DeleteExpiredRefreshTokens(now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired token removed, got %d", n)
	}
	if _, err := store.GetRefreshToken("stale"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("stale token should be gone, got %v", err)
	}

	// Deleting the account cascades to its tokens.
	store.DeleteAccount(acc.ID)
	if _, err := store.GetRefreshToken("live"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("token should cascade with account, got %v", err)
	}
}

func heyJude() *db.Song {
	return &db.Song{
		Title:  " Hey Jude ",
		Artist: "The Beatles",
		Content: []db.Line{
			{{Lyrics: "Hey"}, {Lyrics: "Jude", Chords: "F"}},
			{{Lyrics: "Take"}, {Lyrics: "a"}, {Lyrics: "sad", Chords: "C7"}},
		},
	}
}

func TestUpdateAccount_PasswordRevokesRefreshTokens(t *testing.T) {
	store := openDB(t)
	hash, _ := db.HashPassword("old")
	acc, _ := store.CreateAccount("alice", hash, db.InstrumentGuitar, false)
	other, _ := store.CreateAccount("bob", hash, db.InstrumentBass, false)
	now := time.Now()
	store.SaveRefreshToken(db.RefreshToken{Token: "alice-rt", AccountID: acc.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	store.SaveRefreshToken(db.RefreshToken{Token: "bob-rt", AccountID: other.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now})

	newHash, _ := db.HashPassword("new")
	if err := store.UpdateAccount(acc, newHash); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindAccountByCredentials("alice", "new"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := store.GetRefreshToken("alice-rt"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("alice's token should be revoked, got %v", err)
	}
	if _, err := store.GetRefreshToken("bob-rt"); err != nil {
		t.Errorf("bob's token should survive: %v", err)
	}

	missing := &db.Account{ID: "missing", Instrument: db.InstrumentGuitar}
	if err := store.UpdateAccount(missing, newHash); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing account: expected ErrNotFound, got %v", err)
	}
}

func TestSongCRUD(t *testing.T) {
	store := openDB(t)
	s := heyJude()
	if err := store.CreateSong(s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}

	got, err := store.GetSong(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Hey Jude" {
		t.Errorf("title not trimmed: %q", got.Title)
	}
	if len(got.Content) != 2 || got.Content[0][1].Chords != "F" || got.Content[1][0].Chords != "" {
		t.Errorf("content round trip: %+v", got.Content)
	}
	c := got.GetContent()
	if c.Title != "Hey Jude" || c.Artist != "The Beatles" || len(c.Content) != 2 {
		t.Errorf("GetContent: %+v", c)
	}

	songs, _ := store.ListSongs()
	if len(songs) != 1 || songs[0].Content != nil {
		t.Errorf("list should return one summary without content: %+v", songs)
	}

}

func TestCreateSong_Validation(t *testing.T) {
	store := openDB(t)
	cases := map[string]*db.Song{
		"no title":     {Title: "  ", Content: []db.Line{{{Lyrics: "x"}}}},
		"no content":   {Title: "Empty"},
		"empty lyrics": {Title: "Blank", Content: []db.Line{{{Lyrics: "", Chords: "G"}}}},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			if err := store.CreateSong(s); !errors.Is(err, db.ErrInvalidSong) {
				t.Errorf("expected ErrInvalidSong, got %v", err)
			}
		})
	}
}

func TestSearchSongs(t *testing.T) {
	store := openDB(t)
	store.CreateSong(heyJude())
	store.CreateSong(&db.Song{
		Title:   "ואיך שלא",
		Artist:  "דוגמה עברית",
		Content: []db.Line{{{Lyrics: "ואיך"}, {Lyrics: "שלא", Chords: "Em"}}},
	})
	store.CreateSong(&db.Song{
		Title:   "Let It Be",
		Artist:  "The Beatles",
		Content: []db.Line{{{Lyrics: "When"}, {Lyrics: "I", Chords: "C"}}},
	})

	tests := []struct {
		query string
		want  []string
	}{
		{"jude", []string{"Hey Jude"}},
		{"JUDE", []string{"Hey Jude"}},
		{"beatles", []string{"Hey Jude", "Let It Be"}},
		{"שלא", []string{"ואיך שלא"}},
		{"Ju", []string{"Hey Jude"}},
		{"nothing-matches", nil},
		{"   ", nil},
		{`"`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			songs, err := store.SearchSongs(tt.query)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(songs) != len(tt.want) {
				t.Fatalf("got %d results, want %d: %v", len(songs), len(tt.want), songs)
			}
			seen := map[string]bool{}
			for _, s := range songs {
				seen[s.Title] = true
				if s.Content != nil {
					t.Errorf("search result %q carries content", s.Title)
				}
			}
			for _, w := range tt.want {
				if !seen[w] {
					t.Errorf("missing %q in %v", w, songs)
				}
			}
		})
	}
}

func TestSearchSongs_SubstringFallback(t *testing.T) {
	store := openDB(t)
	store.CreateSong(heyJude())

	// "atle" is not a token prefix, so only the substring match finds it.
	songs, err := store.SearchSongs("atle")
	if err != nil {
		t.Fatal(err)
	}
	if len(songs) != 1 || songs[0].Title != "Hey Jude" {
		t.Errorf("fallback search: %v", songs)
	}
}

func TestReset(t *testing.T) {
	store := openDB(t)
	store.CreateAccount("admin", "h", db.InstrumentKeyboards, true)
	store.CreateSong(heyJude())
	if err := store.Reset(); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountAccounts(); n != 0 {
		t.Errorf("accounts: %d", n)
	}
	if n, _ := store.CountSongs(); n != 0 {
		t.Errorf("songs: %d", n)
	}
}

func TestInstrumentValid(t *testing.T) {
	for _, i := range db.Instruments() {
		if !i.Valid() {
			t.Errorf("%q should be valid", i)
		}
	}
	if db.Instrument("Drums").Valid() {
		t.Error("instrument match is case-sensitive")
	}
}
