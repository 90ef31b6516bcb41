package webserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/netaamz/moveo-project/internal/db"
)

// IssueAccessToken creates a signed HS256 JWT for the given account id.
func IssueAccessToken(secret, accountID string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateAccessToken parses and validates a JWT, returning the subject (account id).
func ValidateAccessToken(secret, tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// GenerateRefreshToken returns a cryptographically random 32-byte hex string.
func GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// contextKey is used to store the authenticated account id in request context.
type contextKey string

const accountIDKey contextKey = "accountID"

func accountIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// jwtMiddleware validates the Bearer token in the Authorization header.
// Requests to public paths bypass validation.
// Websocket upgrades may pass the token as ?token= query param.
func jwtMiddleware(secret string, publicPaths []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range publicPaths {
			if r.URL.Path == p {
				next.ServeHTTP(w, r)
				return
			}
		}

		tokenStr := ""
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			tokenStr = strings.TrimPrefix(auth, "Bearer ")
		} else if q := r.URL.Query().Get("token"); q != "" {
			tokenStr = q
		}

		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		accountID, err := ValidateAccessToken(secret, tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var publicPaths = []string{
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/refresh",
	"/api/auth/logout",
	"/api/auth/instruments",
}

type tokenResponse struct {
	User         *db.Account `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

// issueTokens mints an access token and stores a fresh refresh token.
func (s *Server) issueTokens(acc *db.Account) (tokenResponse, error) {
	access, err := IssueAccessToken(s.cfg.Auth.JWTSecret, acc.ID, s.cfg.Auth.AccessTokenTTL)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, err := GenerateRefreshToken()
	if err != nil {
		return tokenResponse{}, err
	}
	now := time.Now()
	err = s.store.SaveRefreshToken(db.RefreshToken{
		Token:     refresh,
		AccountID: acc.ID,
		ExpiresAt: now.Add(s.cfg.Auth.RefreshTokenTTL),
		CreatedAt: now,
	})
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{User: acc, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		Instrument string `json:"instrument"`
		IsAdmin    bool   `json:"isAdmin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Username) == "" || body.Password == "" || body.Instrument == "" {
		writeError(w, http.StatusBadRequest, "username, password and instrument are required")
		return
	}
	instrument := db.Instrument(strings.ToLower(body.Instrument))
	if !instrument.Valid() {
		writeError(w, http.StatusBadRequest, "invalid instrument")
		return
	}
	hash, err := db.HashPassword(body.Password)
	if err != nil {
		s.internalError(w, "hash password", err)
		return
	}
	acc, err := s.store.CreateAccount(body.Username, hash, instrument, body.IsAdmin)
	switch {
	case errors.Is(err, db.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, "username already exists")
		return
	case err != nil:
		s.internalError(w, "create account", err)
		return
	}
	resp, err := s.issueTokens(acc)
	if err != nil {
		s.internalError(w, "issue tokens", err)
		return
	}
	s.logger.Info("webserver: account registered", "username", acc.Username, "instrument", string(acc.Instrument), "admin", acc.IsAdmin)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	acc, err := s.store.FindAccountByCredentials(body.Username, body.Password)
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		s.internalError(w, "find account", err)
		return
	}
	resp, err := s.issueTokens(acc)
	if err != nil {
		s.internalError(w, "issue tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token: the presented one is consumed and
// a new pair is returned.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	rt, err := s.store.GetRefreshToken(body.RefreshToken)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	} else if err != nil {
		s.internalError(w, "get refresh token", err)
		return
	}
	if err := s.store.DeleteRefreshToken(rt.Token); err != nil {
		s.internalError(w, "delete refresh token", err)
		return
	}
	if time.Now().After(rt.ExpiresAt) {
		writeError(w, http.StatusUnauthorized, "refresh token expired")
		return
	}
	acc, err := s.store.GetAccount(rt.AccountID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return
	} else if err != nil {
		s.internalError(w, "get account", err)
		return
	}
	resp, err := s.issueTokens(acc)
	if err != nil {
		s.internalError(w, "issue tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.RefreshToken != "" {
		if err := s.store.DeleteRefreshToken(body.RefreshToken); err != nil {
			s.internalError(w, "delete refresh token", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acc, err := s.store.GetAccount(accountIDFrom(r.Context()))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	} else if err != nil {
		s.internalError(w, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, db.Instruments())
}

// currentAccount loads the caller's account. It writes a 401 and returns
// false when the token's account has since been deleted.
func (s *Server) currentAccount(w http.ResponseWriter, r *http.Request) (*db.Account, bool) {
	acc, err := s.store.GetAccount(accountIDFrom(r.Context()))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return nil, false
	} else if err != nil {
		s.internalError(w, "get account", err)
		return nil, false
	}
	return acc, true
}
