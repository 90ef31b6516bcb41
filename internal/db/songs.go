package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const songSummaryColumns = `songs.id, songs.title, songs.artist, songs.created_by, songs.created_at`

func validateSong(s *Song) error {
	s.Title = strings.TrimSpace(s.Title)
	s.Artist = strings.TrimSpace(s.Artist)
	if s.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidSong)
	}
	if len(s.Content) == 0 {
		return fmt.Errorf("%w: content must be a non-empty array of lines", ErrInvalidSong)
	}
	for i, line := range s.Content {
		for j, w := range line {
			if w.Lyrics == "" {
				return fmt.Errorf("%w: line %d word %d has no lyrics", ErrInvalidSong, i, j)
			}
		}
	}
	return nil
}

// CreateSong validates s, assigns its ID and creation time when unset, and
// indexes title and artist for search.
func (d *DB) CreateSong(s *Song) error {
	if err := validateSong(s); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().Truncate(time.Millisecond)
	}
	content, err := json.Marshal(s.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}

	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO songs (id, title, artist, content, created_by, created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.Title, s.Artist, string(content), s.CreatedBy, s.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert song: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO songs_fts (song_id, title, artist) VALUES (?,?,?)`,
		s.ID, norm.NFKC.String(s.Title), norm.NFKC.String(s.Artist),
	); err != nil {
		return fmt.Errorf("index song: %w", err)
	}
	return tx.Commit()
}

// GetSong returns the song including its lyrics/chords content.
func (d *DB) GetSong(id string) (*Song, error) {
	var s Song
	var content string
	var createdAt int64
	err := d.sql.QueryRow(
		`SELECT id, title, artist, content, created_by, created_at FROM songs WHERE id = ?`, id,
	).Scan(&s.ID, &s.Title, &s.Artist, &content, &s.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &s.Content); err != nil {
		return nil, fmt.Errorf("decode content of song %s: %w", id, err)
	}
	s.CreatedAt = time.UnixMilli(createdAt)
	return &s, nil
}

// ListSongs returns song summaries (no content), newest first.
func (d *DB) ListSongs() ([]*Song, error) {
	return d.querySummaries(`SELECT ` + songSummaryColumns + ` FROM songs ORDER BY songs.created_at DESC, songs.title`)
}

// SearchSongs matches query against titles and artists. The query is
// NFKC-normalized so Hebrew and English input compare consistently. A
// full-text match ranked by relevance is tried first; if it fails or finds
// nothing, a case-insensitive substring match is used instead. Results
// carry no content.
func (d *DB) SearchSongs(query string) ([]*Song, error) {
	q := strings.TrimSpace(norm.NFKC.String(query))
	if q == "" {
		return nil, nil
	}
	songs, err := d.querySummaries(
		`SELECT `+songSummaryColumns+`
		 FROM songs_fts JOIN songs ON songs.id = songs_fts.song_id
		 WHERE songs_fts MATCH ?
		 ORDER BY rank`,
		ftsQuery(q),
	)
	if err == nil && len(songs) > 0 {
		return songs, nil
	}
	pattern := "%" + escapeLike(q) + "%"
	return d.querySummaries(
		`SELECT `+songSummaryColumns+` FROM songs
		 WHERE songs.title LIKE ? ESCAPE '\' OR songs.artist LIKE ? ESCAPE '\'
		 ORDER BY songs.title`,
		pattern, pattern,
	)
}

func (d *DB) CountSongs() (int, error) {
	var n int
	err := d.sql.QueryRow(`SELECT COUNT(*) FROM songs`).Scan(&n)
	return n, err
}

func (d *DB) CountAccounts() (int, error) {
	var n int
	err := d.sql.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

// Reset removes every song, account and refresh token.
func (d *DB) Reset() error {
	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM songs_fts`,
		`DELETE FROM songs`,
		`DELETE FROM refresh_tokens`,
		`DELETE FROM accounts`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return tx.Commit()
}

func (d *DB) querySummaries(query string, args ...any) ([]*Song, error) {
	rows, err := d.sql.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var songs []*Song
	for rows.Next() {
		var s Song
		var createdAt int64
		if err := rows.Scan(&s.ID, &s.Title, &s.Artist, &s.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		s.CreatedAt = time.UnixMilli(createdAt)
		songs = append(songs, &s)
	}
	return songs, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression: every term quoted,
// prefix-matched and OR-ed together.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " OR ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
