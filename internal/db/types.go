package db

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUsernameTaken     = errors.New("username already exists")
	ErrInvalidInstrument = errors.New("invalid instrument")
	ErrInvalidSong       = errors.New("invalid song")
)

type Instrument string

const (
	InstrumentDrums     Instrument = "drums"
	InstrumentGuitar    Instrument = "guitar"
	InstrumentBass      Instrument = "bass"
	InstrumentSaxophone Instrument = "saxophone"
	InstrumentKeyboards Instrument = "keyboards"
	InstrumentVocals    Instrument = "vocals"
)

// Instruments lists every instrument an account may play, in display order.
func Instruments() []Instrument {
	return []Instrument{
		InstrumentDrums,
		InstrumentGuitar,
		InstrumentBass,
		InstrumentSaxophone,
		InstrumentKeyboards,
		InstrumentVocals,
	}
}

func (i Instrument) Valid() bool {
	for _, known := range Instruments() {
		if i == known {
			return true
		}
	}
	return false
}

type Account struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Instrument   Instrument `json:"instrument"`
	IsAdmin      bool       `json:"isAdmin"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type RefreshToken struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Word is one lyric token with the chord played on it, if any.
type Word struct {
	Lyrics string `json:"lyrics"`
	Chords string `json:"chords,omitempty"`
}

type Line []Word

type Song struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Content   []Line    `json:"content,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// SongContent is the document the live view renders.
type SongContent struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Content []Line `json:"content"`
}

func (s *Song) GetContent() SongContent {
	return SongContent{Title: s.Title, Artist: s.Artist, Content: s.Content}
}
