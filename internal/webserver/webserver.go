package webserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/netaamz/moveo-project/internal/db"
	"github.com/netaamz/moveo-project/internal/hub"
)

type TLSConfig struct {
	Mode     string // "self-signed", "manual", or "" (plain HTTP)
	CertFile string
	KeyFile  string
	CacheDir string
}

type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type Config struct {
	Port           int
	Host           string
	AllowedOrigins []string
	// SendBuffer bounds the outbound frames queued per websocket client.
	SendBuffer int
	TLS        TLSConfig
	Auth       AuthConfig
}

type Server struct {
	store  *db.DB
	hub    *hub.Hub
	cfg    Config
	logger *slog.Logger
}

func New(store *db.DB, h *hub.Hub, cfg Config, logger *slog.Logger) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		cfg.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.Auth.RefreshTokenTTL <= 0 {
		cfg.Auth.RefreshTokenTTL = 24 * time.Hour
	}
	return &Server{store: store, hub: h, cfg: cfg, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)
	mux.HandleFunc("GET /api/auth/instruments", s.handleInstruments)
	mux.HandleFunc("GET /api/songs/search", s.handleSearchSongs)
	mux.HandleFunc("GET /api/songs/{id}", s.handleGetSong)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	mux.HandleFunc("PUT /api/users/{id}", s.handleUpdateUser)
	mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)
	mux.HandleFunc("GET /ws", s.handleWS)
	return jwtMiddleware(s.cfg.Auth.JWTSecret, publicPaths, mux)
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	switch s.cfg.TLS.Mode {
	case "":
		return nil, nil
	case "self-signed":
		return selfSignedTLS(s.cfg.TLS.CacheDir, s.cfg.Host)
	case "manual":
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load tls key pair: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	default:
		return nil, fmt.Errorf("unknown tls mode %q", s.cfg.TLS.Mode)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	tlsCfg, err := s.tlsConfig()
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("webserver: listening", "addr", addr, "tls", s.cfg.TLS.Mode != "")
		if tlsCfg != nil {
			errc <- srv.ListenAndServeTLS("", "")
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("webserver: "+op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
