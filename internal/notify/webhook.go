package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook forwards notification events verbatim as a JSON POST to a
// user-configured URL. The URL is resolved at delivery time so ruleset
// edits take effect without restarting anything.
type Webhook struct {
	client *http.Client
	url    func() string
}

// NewWebhook creates the sink. url is called per event and may return
// an empty string to disable delivery.
func NewWebhook(client *http.Client, url func() string) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Webhook{client: client, url: url}
}

// Name identifies the sink in logs.
func (w *Webhook) Name() string { return "webhook" }

// Notify posts {kind, ts} to the configured URL.
func (w *Webhook) Notify(ctx context.Context, kind Kind) error {
	target := w.url()
	if target == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"kind": kind,
		"ts":   time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
