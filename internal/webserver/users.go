package webserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/netaamz/moveo-project/internal/db"
)

// publicProfile is what other band members may see of an account.
type publicProfile struct {
	ID         string        `json:"id"`
	Username   string        `json:"username"`
	Instrument db.Instrument `json:"instrument"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	if !caller.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}
	accounts, err := s.store.ListAccounts()
	if err != nil {
		s.internalError(w, "list accounts", err)
		return
	}
	if accounts == nil {
		accounts = []*db.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	target, ok := s.lookupUser(w, r.PathValue("id"))
	if !ok {
		return
	}
	if caller.IsAdmin || caller.ID == target.ID {
		writeJSON(w, http.StatusOK, target)
		return
	}
	writeJSON(w, http.StatusOK, publicProfile{ID: target.ID, Username: target.Username, Instrument: target.Instrument})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if !caller.IsAdmin && caller.ID != id {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	var body struct {
		Instrument *string `json:"instrument"`
		Password   *string `json:"password"`
		IsAdmin    *bool   `json:"isAdmin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target, ok := s.lookupUser(w, id)
	if !ok {
		return
	}

	if body.Instrument != nil {
		instrument := db.Instrument(strings.ToLower(*body.Instrument))
		if !instrument.Valid() {
			writeError(w, http.StatusBadRequest, "invalid instrument")
			return
		}
		target.Instrument = instrument
	}
	if body.IsAdmin != nil && caller.IsAdmin {
		target.IsAdmin = *body.IsAdmin
	}
	var hash string
	if body.Password != nil {
		if *body.Password == "" {
			writeError(w, http.StatusBadRequest, "password must not be empty")
			return
		}
		var err error
		if hash, err = db.HashPassword(*body.Password); err != nil {
			s.internalError(w, "hash password", err)
			return
		}
	}
	if err := s.store.UpdateAccount(target, hash); err != nil {
		s.internalError(w, "update account", err)
		return
	}
	if hash != "" {
		s.logger.Info("webserver: password changed, sessions revoked", "id", target.ID, "by", caller.Username)
	}
	writeJSON(w, http.StatusOK, target)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	if !caller.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}
	id := r.PathValue("id")
	if id == caller.ID {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	err := s.store.DeleteAccount(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	} else if err != nil {
		s.internalError(w, "delete account", err)
		return
	}
	s.logger.Info("webserver: account deleted", "id", id, "by", caller.Username)
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (s *Server) lookupUser(w http.ResponseWriter, id string) (*db.Account, bool) {
	acc, err := s.store.GetAccount(id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	} else if err != nil {
		s.internalError(w, "get account", err)
		return nil, false
	}
	return acc, true
}
