package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"straddle-trader/internal/config"
)

// WebhookNotifier posts each notification as JSON.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// webhookPayload carries a preformatted text line so chat services that only
// read "text" (Slack, Mattermost) render something useful.
type webhookPayload struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Text      string                 `json:"text"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *WebhookNotifier) Name() string    { return "webhook" }
func (w *WebhookNotifier) IsEnabled() bool { return w.enabled }

func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Text:      n.Title + ": " + n.Message,
		Data:      n.Data,
		Timestamp: n.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding %s notification: %w", n.Type, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting %q to webhook: %w", n.Title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook answered %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
