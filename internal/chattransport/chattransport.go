// Package chattransport implements the opaque chat-transport collaborator
// of spec §4.5/§6: a single send_message(payload) operation returning
// ok|error, bounded by a delivery timeout (default 30s). Mention
// composition is the caller's responsibility; this package only delivers
// an already-composed payload.
package chattransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Embed is an optional structured embed attached to a message.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// Payload is the composed message handed to the transport. The Coordinator
// leaves Content empty and prepends any mention text to Embed.Description.
type Payload struct {
	Content string  `json:"content"`
	Embed   *Embed  `json:"embed,omitempty"`
}

// Transport is the dispatch contract. Implementations must honor ctx's
// deadline. The Coordinator passes its ctx through without adding one; the
// Webhook's 30s dispatch bound comes from its http.Client timeout.
type Transport interface {
	SendMessage(ctx context.Context, destination string, payload Payload) error
}

// Webhook delivers messages via an HTTP POST to a chat platform's incoming
// webhook URL (e.g. a Discord webhook), the simplest transport that matches
// spec's "opaque send_message(payload)" contract — no teacher dependency
// targets this wire format specifically, so it is built directly on
// net/http per the Design Notes' guidance to implement a collaborator
// directly when nothing in the stack already speaks its protocol.
type Webhook struct {
	client      *http.Client
	urlTemplate map[string]string // destination -> webhook URL
}

// NewWebhook creates a Webhook transport. urls maps a destination
// identifier (e.g. a Discord channel ID) to its webhook URL.
func NewWebhook(client *http.Client, urls map[string]string) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Webhook{client: client, urlTemplate: urls}
}

func (w *Webhook) SendMessage(ctx context.Context, destination string, payload Payload) error {
	url, ok := w.urlTemplate[destination]
	if !ok || url == "" {
		return fmt.Errorf("chattransport: no webhook configured for destination %q", destination)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chattransport: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chattransport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("chattransport: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chattransport: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
