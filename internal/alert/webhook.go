package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mapwatch/mapwatch/internal/config"
)

// errorColorHex is the card accent used for outbound notifications. Entity
// alerts only fire on error transitions, so the color is fixed.
const errorColorHex = "E30613"

// WebhookSink posts alert payloads to a single webhook endpoint. The payload
// shape depends on the configured type: Slack text, Teams MessageCard, or a
// generic JSON envelope for plain HTTP receivers.
type WebhookSink struct {
	kind   string
	url    string
	client *http.Client
}

func NewWebhookSink(cfg config.WebhookConfig) *WebhookSink {
	return &WebhookSink{
		kind:   cfg.Type,
		url:    cfg.URL(),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, a Alert) error {
	if s.url == "" {
		return fmt.Errorf("alert: webhook %s: url env not set", s.kind)
	}

	var body []byte
	switch s.kind {
	case "slack":
		body, _ = json.Marshal(map[string]string{
			"text": fmt.Sprintf("*[ALERT]* %s is in error state\n%s", a.EntityName, a.DashboardURL),
		})
	case "teams":
		body, _ = json.Marshal(map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": errorColorHex,
			"summary":    a.EntityName,
			"title":      fmt.Sprintf("Dashboard Alert: %s", a.EntityName),
			"text":       fmt.Sprintf("%s entered error state at %s. %s", a.EntityName, a.FiredAt.Format(time.RFC3339), a.DashboardURL),
		})
	default:
		body, _ = json.Marshal(map[string]interface{}{"alert": a})
	}
	return s.post(ctx, body)
}

func (s *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
