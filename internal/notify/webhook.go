package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSink posts event payloads as JSON to an HTTP endpoint.
// Transient failures (HTTP 5xx and 429) are retried with exponential
// backoff; anything else fails immediately since a retry would only
// repeat the same rejection.
type WebhookSink struct {
	client   *http.Client
	url      string
	token    string
	retries  int
	baseWait time.Duration
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithWebhookHTTPClient sets a custom HTTP client.
func WithWebhookHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

// WithWebhookRetry overrides the retry count and initial backoff.
func WithWebhookRetry(retries int, baseWait time.Duration) WebhookOption {
	return func(s *WebhookSink) {
		s.retries = retries
		s.baseWait = baseWait
	}
}

// NewWebhook creates a webhook sink. token, when set, is sent as a
// Bearer credential.
func NewWebhook(url, token string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		client:   &http.Client{Timeout: 10 * time.Second},
		url:      url,
		token:    token,
		retries:  3,
		baseWait: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WebhookSink) Name() string { return "webhook" }

// Post delivers one payload, retrying transient failures.
func (s *WebhookSink) Post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: webhook: marshal: %w", err)
	}

	wait := s.baseWait
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			wait *= 2
		}

		retryable, err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return lastErr
		}
	}
	return fmt.Errorf("notify: webhook: giving up after %d attempts: %w", s.retries+1, lastErr)
}

func (s *WebhookSink) post(ctx context.Context, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("notify: webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("notify: webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("notify: webhook: status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("notify: webhook: status %d", resp.StatusCode)
	}
}
