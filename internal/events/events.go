package events

import (
	"encoding/json"
	"fmt"
)

// Lobby is the room every connection joins. It is the only room today;
// events still carry a room so per-rehearsal rooms need no wire change.
const Lobby = "main-lobby"

type Type string

const (
	// client -> server
	TypeJoin Type = "join"

	// client -> server and server -> all clients
	TypeSongSelected Type = "song-selected"
	TypeSessionEnded Type = "session-ended"

	// server -> room
	TypeUserLeft Type = "user-left"

	// server -> one client
	TypeError Type = "error"
)

// Legacy frame names accepted on input.
var aliases = map[Type]Type{
	"join-main":       TypeJoin,
	"rehearsal-ended": TypeSessionEnded,
}

// Event is a frame on the real-time channel. Which fields are set depends
// on Type; the constructors below build each variant.
type Event struct {
	Type        Type   `json:"type"`
	Room        string `json:"room,omitempty"`
	RehearsalID string `json:"rehearsalId,omitempty"`
	SongID      string `json:"songId,omitempty"`
	SongTitle   string `json:"songTitle,omitempty"`
	SongArtist  string `json:"songArtist,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Code        Code   `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

func Join(userID string) Event {
	return Event{Type: TypeJoin, UserID: userID}
}

func SongSelected(rehearsalID, songID, songTitle, songArtist string) Event {
	return Event{
		Type:        TypeSongSelected,
		Room:        Lobby,
		RehearsalID: rehearsalID,
		SongID:      songID,
		SongTitle:   songTitle,
		SongArtist:  songArtist,
	}
}

func SessionEnded(rehearsalID string) Event {
	return Event{Type: TypeSessionEnded, Room: Lobby, RehearsalID: rehearsalID}
}

func UserLeft(room, userID string) Event {
	return Event{Type: TypeUserLeft, Room: room, UserID: userID}
}

func Error(code Code, message string) Event {
	return Event{Type: TypeError, Code: code, Message: message}
}

// Code classifies failures reported to a single client.
type Code string

const (
	CodeUnauthenticated      Code = "unauthenticated"
	CodeUnauthorized         Code = "unauthorized"
	CodeNotFound             Code = "not_found"
	CodeTransportUnavailable Code = "transport_unavailable"
	CodeBadRequest           Code = "bad_request"
)

// Decode parses one inbound frame, mapping legacy type names.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}
	if t, ok := aliases[e.Type]; ok {
		e.Type = t
	}
	switch e.Type {
	case TypeJoin, TypeSongSelected, TypeSessionEnded, TypeUserLeft, TypeError:
		return e, nil
	default:
		return Event{}, fmt.Errorf("unknown frame type %q", e.Type)
	}
}

func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}
