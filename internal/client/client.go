// Package client talks to the rehearsal server over HTTP and websocket on
// behalf of one band member.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/netaamz/moveo-project/internal/db"
)

const userAgent = "jamoveo-follow/1"

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	base *url.URL
	http *http.Client

	mu      sync.Mutex
	access  string
	refresh string

	// refreshMu serializes token rotation; a refresh token is single-use.
	refreshMu sync.Mutex
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. to trust a self-signed
// certificate.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

func (c *Client) setTokens(access, refresh string) {
	c.mu.Lock()
	c.access, c.refresh = access, refresh
	c.mu.Unlock()
}

type tokenResponse struct {
	User         *db.Account `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

// Login authenticates and keeps the issued tokens for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*db.Account, error) {
	var resp tokenResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.setTokens(resp.AccessToken, resp.RefreshToken)
	return resp.User, nil
}

// Refresh swaps the refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.rotate(ctx)
}

// refreshAfter rotates the tokens once stale has been rejected. A caller
// that lost the race to another refresh finds a newer access token and
// uses that instead.
func (c *Client) refreshAfter(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.token() != stale {
		return nil
	}
	return c.rotate(ctx)
}

func (c *Client) rotate(ctx context.Context) error {
	c.mu.Lock()
	rt := c.refresh
	c.mu.Unlock()
	if rt == "" {
		return errors.New("not logged in")
	}
	payload, err := json.Marshal(map[string]string{"refresh_token": rt})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp tokenResponse
	if err := c.send(ctx, http.MethodPost, "/api/auth/refresh", "", payload, &resp); err != nil {
		return err
	}
	c.setTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

// Logout revokes the refresh token and forgets both tokens.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	rt := c.refresh
	c.mu.Unlock()
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", map[string]string{"refresh_token": rt}, nil)
	c.setTokens("", "")
	return err
}

func (c *Client) Me(ctx context.Context) (*db.Account, error) {
	var acc db.Account
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) SearchSongs(ctx context.Context, query string) ([]*db.Song, error) {
	var songs []*db.Song
	path := "/api/songs/search?query=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &songs); err != nil {
		return nil, err
	}
	return songs, nil
}

func (c *Client) GetSong(ctx context.Context, id string) (*db.SongContent, error) {
	var song db.SongContent
	if err := c.do(ctx, http.MethodGet, "/api/songs/"+url.PathEscape(id), nil, &song); err != nil {
		return nil, err
	}
	return &song, nil
}

// do sends an authenticated request. An access token rejected with 401 is
// refreshed once and the request retried.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = data
	}
	tok := c.token()
	err := c.send(ctx, method, path, tok, payload, out)
	if tok == "" || !IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	if rerr := c.refreshAfter(ctx, tok); rerr != nil {
		return err
	}
	return c.send(ctx, method, path, c.token(), payload, out)
}

// send performs one round trip with payload as the JSON body.
func (c *Client) send(ctx context.Context, method, path, token string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
