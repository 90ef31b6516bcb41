package webserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/netaamz/moveo-project/internal/db"
)

func (s *Server) handleSearchSongs(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	songs, err := s.store.SearchSongs(query)
	if err != nil {
		s.internalError(w, "search songs", err)
		return
	}
	if songs == nil {
		songs = []*db.Song{}
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	song, err := s.store.GetSong(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "song not found")
		return
	} else if err != nil {
		s.internalError(w, "get song", err)
		return
	}
	writeJSON(w, http.StatusOK, song.GetContent())
}
