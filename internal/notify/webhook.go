package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gate-service/internal/domain/anpr"
)

// WebhookSink forwards alerts to a relay that owns the chat channel, such as
// a second gate-service running `serve`.
type WebhookSink struct {
	baseURL string
	client  *http.Client
}

func NewWebhookSink(baseURL string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Notify(ctx context.Context, _ anpr.Owner, plate, imageRef string) error {
	return s.post(ctx, "/api/v1/notify", anpr.NotifyPayload{Plate: plate, ImageURL: imageRef})
}

func (s *WebhookSink) NotifyTimeout(ctx context.Context, _ anpr.Owner, plate string) error {
	return s.post(ctx, "/api/v1/timeout", anpr.TimeoutPayload{Plate: plate})
}

func (s *WebhookSink) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result anpr.RelayResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Status != "" && result.Status != "ok" {
		return fmt.Errorf("relay %s: %s: %s", path, result.Status, result.Message)
	}
	return nil
}
