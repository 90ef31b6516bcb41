// Package notify posts rehearsal activity to an optional webhook and/or an
// ntfy topic, so band members away from the app can see when a song goes
// live.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/netaamz/moveo-project/internal/events"
)

// Config holds notification settings.
type Config struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
}

// Notifier sends optional webhook and ntfy POSTs for live session events.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New returns a Notifier with the given config.
func New(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Observe is meant for hub.WithObserver. It never blocks the caller.
func (n *Notifier) Observe(e events.Event) {
	if !n.cfg.Enabled || !notable(e) {
		return
	}
	go n.Notify(e)
}

func notable(e events.Event) bool {
	return e.Type == events.TypeSongSelected || e.Type == events.TypeSessionEnded
}

// Notify delivers e to every configured target and returns once all POSTs
// have completed. Delivery failures are logged, not returned.
func (n *Notifier) Notify(e events.Event) {
	if !n.cfg.Enabled || !notable(e) {
		return
	}
	if n.cfg.Webhook != "" {
		n.sendWebhook(e)
	}
	if n.cfg.NtfyURL != "" {
		n.sendNtfy(e)
	}
}

type webhookPayload struct {
	Event       string `json:"event"`
	RehearsalID string `json:"rehearsalId"`
	SongID      string `json:"songId,omitempty"`
	SongTitle   string `json:"songTitle,omitempty"`
	SongArtist  string `json:"songArtist,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func (n *Notifier) sendWebhook(e events.Event) {
	payload := webhookPayload{
		Event:       string(e.Type),
		RehearsalID: e.RehearsalID,
		SongID:      e.SongID,
		SongTitle:   e.SongTitle,
		SongArtist:  e.SongArtist,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	n.post("webhook", n.cfg.Webhook, payload)
}

type ntfyPayload struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
}

func (n *Notifier) sendNtfy(e events.Event) {
	payload := ntfyPayload{Priority: 3}
	switch e.Type {
	case events.TypeSongSelected:
		payload.Title = fmt.Sprintf("Now playing: %s", e.SongTitle)
		payload.Message = fmt.Sprintf("%s · rehearsal %s", e.SongArtist, e.RehearsalID)
		payload.Priority = 4
		payload.Tags = []string{"musical_note"}
	case events.TypeSessionEnded:
		payload.Title = "Rehearsal song ended"
		payload.Message = fmt.Sprintf("rehearsal %s is back to waiting", e.RehearsalID)
		payload.Tags = []string{"stop_button"}
	}
	n.post("ntfy", n.cfg.NtfyURL, payload)
}

func (n *Notifier) post(target, url string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("notify: marshal payload", "target", target, "err", err)
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		n.logger.Warn("notify: "+target+" POST failed", "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("notify: "+target+" rejected", "status", resp.StatusCode)
	}
}
