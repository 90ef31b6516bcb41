// Package seed loads the sample band members and songs used for demos and
// local development.
package seed

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/netaamz/moveo-project/internal/db"
)

//go:embed songs.json
var songsJSON []byte

type sampleUser struct {
	Username   string
	Password   string
	Instrument db.Instrument
	IsAdmin    bool
}

var sampleUsers = []sampleUser{
	{"admin", "admin123", db.InstrumentKeyboards, true},
	{"drummer_mike", "beats123", db.InstrumentDrums, false},
	{"sarah_vocals", "sing123", db.InstrumentVocals, false},
	{"guitar_hero", "rock123", db.InstrumentGuitar, false},
	{"bass_master", "low123", db.InstrumentBass, false},
	{"sax_player", "jazz123", db.InstrumentSaxophone, false},
	{"piano_jane", "keys123", db.InstrumentKeyboards, false},
	{"band_manager", "manage123", db.InstrumentGuitar, true},
}

// Songs returns the bundled sample songs.
func Songs() ([]*db.Song, error) {
	var songs []*db.Song
	if err := json.Unmarshal(songsJSON, &songs); err != nil {
		return nil, fmt.Errorf("decode sample songs: %w", err)
	}
	return songs, nil
}

type Options struct {
	// Clear wipes accounts, tokens and songs before loading.
	Clear bool
}

type Result struct {
	Users        []*db.Account
	Songs        []*db.Song
	SkippedUsers int
	SkippedSongs int
	// TotalUsers and TotalSongs count what the store holds after the run.
	TotalUsers int
	TotalSongs int
}

// Run loads the sample data into store. Existing accounts and songs with the
// same title and artist are left alone, so Run can be repeated.
func Run(store *db.DB, opts Options, logger *slog.Logger) (*Result, error) {
	if opts.Clear {
		if err := store.Reset(); err != nil {
			return nil, fmt.Errorf("clear database: %w", err)
		}
		logger.Info("seed: cleared existing data")
	}

	res := &Result{}
	var owner *db.Account
	for _, u := range sampleUsers {
		acc, created, err := ensureUser(store, u)
		if err != nil {
			return nil, err
		}
		if !created {
			res.SkippedUsers++
			logger.Info("seed: user exists, skipping", "username", u.Username)
		}
		if owner == nil && acc.IsAdmin {
			owner = acc
		}
		res.Users = append(res.Users, acc)
	}

	songs, err := Songs()
	if err != nil {
		return nil, err
	}
	existing, err := store.ListSongs()
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[songKey(s)] = true
	}
	for _, s := range songs {
		if have[songKey(s)] {
			res.SkippedSongs++
			continue
		}
		if owner != nil {
			s.CreatedBy = owner.ID
		}
		if err := store.CreateSong(s); err != nil {
			return nil, fmt.Errorf("create song %q: %w", s.Title, err)
		}
		logger.Info("seed: created song", "title", s.Title, "artist", s.Artist)
		res.Songs = append(res.Songs, s)
	}

	if res.TotalUsers, err = store.CountAccounts(); err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	if res.TotalSongs, err = store.CountSongs(); err != nil {
		return nil, fmt.Errorf("count songs: %w", err)
	}
	return res, nil
}

func ensureUser(store *db.DB, u sampleUser) (*db.Account, bool, error) {
	hash, err := db.HashPassword(u.Password)
	if err != nil {
		return nil, false, err
	}
	acc, err := store.CreateAccount(u.Username, hash, u.Instrument, u.IsAdmin)
	if errors.Is(err, db.ErrUsernameTaken) {
		acc, err = store.GetAccountByUsername(u.Username)
		return acc, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return acc, true, nil
}

func songKey(s *db.Song) string {
	return strings.ToLower(strings.TrimSpace(s.Title)) + "\x00" + strings.ToLower(strings.TrimSpace(s.Artist))
}

// WriteSummary prints what Run loaded along with the sample credentials.
func WriteSummary(w io.Writer, res *Result) {
	fmt.Fprintf(w, "Users (%s, %s already present):\n", humanize.Comma(int64(len(res.Users))), humanize.Comma(int64(res.SkippedUsers)))
	for _, u := range res.Users {
		role := ""
		if u.IsAdmin {
			role = " admin"
		}
		fmt.Fprintf(w, "  %-14s %-10s%s  created %s\n", u.Username, u.Instrument, role, humanize.Time(u.CreatedAt))
	}
	fmt.Fprintf(w, "Songs added: %s (%s skipped)\n", humanize.Comma(int64(len(res.Songs))), humanize.Comma(int64(res.SkippedSongs)))
	for _, s := range res.Songs {
		fmt.Fprintf(w, "  %q by %s\n", s.Title, s.Artist)
	}
	fmt.Fprintf(w, "Library: %s songs, %s accounts\n", humanize.Comma(int64(res.TotalSongs)), humanize.Comma(int64(res.TotalUsers)))
	fmt.Fprintln(w, "Sample logins:")
	for _, u := range sampleUsers {
		fmt.Fprintf(w, "  %s / %s\n", u.Username, u.Password)
	}
}
