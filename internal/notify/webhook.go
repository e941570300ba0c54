package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gosuda/sentinel/internal/domain"
)

// WebhookSender POSTs incidents as JSON to an arbitrary HTTP endpoint.
type WebhookSender struct {
	url    string
	client *http.Client
}

var _ Sender = (*WebhookSender)(nil)

// NewWebhookSender creates a generic webhook sender.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the sender identifier.
func (s *WebhookSender) Name() string {
	return "webhook"
}

// Send POSTs the incident. Any non-2xx response is a delivery failure.
func (s *WebhookSender) Send(ctx context.Context, inc *domain.Incident) error {
	body, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("notify.WebhookSender.Send: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify.WebhookSender.Send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify.WebhookSender.Send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify.WebhookSender.Send: unexpected status %d", resp.StatusCode)
	}

	return nil
}
