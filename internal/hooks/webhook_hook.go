// Webhook hook: HTTP POST of event JSON to a configured URL
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookHook sends HTTP POST requests to a webhook URL when events occur.
type WebhookHook struct {
	id      string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookHook creates a new webhook hook.
func NewWebhookHook(id, url string, timeout time.Duration) *WebhookHook {
	return &WebhookHook{
		id:      id,
		url:     url,
		headers: make(map[string]string),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// AddHeader adds a custom HTTP header to webhook requests.
func (h *WebhookHook) AddHeader(key, value string) *WebhookHook {
	if h.headers == nil {
		h.headers = make(map[string]string)
	}
	h.headers[key] = value
	return h
}

// Execute sends the event data as JSON to the webhook URL.
func (h *WebhookHook) Execute(ctx context.Context, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook hook %s: failed to marshal JSON: %w", h.id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("webhook hook %s: failed to create request: %w", h.id, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook hook %s: request failed: %w", h.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook hook %s: server returned status %d", h.id, resp.StatusCode)
	}

	return nil
}

// Type returns the hook type.
func (h *WebhookHook) Type() string {
	return "webhook"
}

// ID returns the hook ID.
func (h *WebhookHook) ID() string {
	return h.id
}
