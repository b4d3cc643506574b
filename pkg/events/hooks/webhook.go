package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/auditkit/auditkit/pkg/defaults"
	"github.com/auditkit/auditkit/pkg/duration"
	"github.com/auditkit/auditkit/pkg/events"
	"github.com/auditkit/auditkit/pkg/finding"
	"github.com/auditkit/auditkit/pkg/httpclient"
)

// severityOrder maps severity to numeric order; higher is more severe.
var severityOrder = map[finding.Severity]int{
	finding.Info:     1,
	finding.Low:      2,
	finding.Medium:   3,
	finding.High:     4,
	finding.Critical: 5,
}

// WebhookHook POSTs events to an HTTP endpoint, with retries and an
// optional minimum-severity filter for issue events.
//
// Grounded on the teacher's pkg/output/hooks/webhook.go (exponential
// backoff retry loop, severity-threshold filtering, custom headers).
type WebhookHook struct {
	endpoint string
	client   *http.Client
	opts     WebhookOptions
}

// WebhookOptions configures WebhookHook.
type WebhookOptions struct {
	Headers     map[string]string
	Timeout     time.Duration // default duration.ContextShort
	RetryCount  int           // default defaults.RetryMedium
	MinSeverity finding.Severity
}

// NewWebhookHook returns a hook posting events to endpoint.
func NewWebhookHook(endpoint string, opts WebhookOptions) *WebhookHook {
	if opts.Timeout == 0 {
		opts.Timeout = duration.ContextShort
	}
	if opts.RetryCount == 0 {
		opts.RetryCount = defaults.RetryMedium
	}
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = opts.Timeout
	return &WebhookHook{endpoint: endpoint, client: httpclient.New(cfg), opts: opts}
}

func (h *WebhookHook) OnEvent(e events.Event) error {
	if iss, ok := e.(events.IssueEvent); ok && h.opts.MinSeverity != "" && !h.meetsMinSeverity(iss.Issue.Severity) {
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		log.Printf("webhook: failed to marshal event: %v", err)
		return nil
	}

	if err := h.sendWithRetry(context.Background(), e.EventType(), body); err != nil {
		log.Printf("webhook: failed to send event after retries: %v", err)
	}
	return nil
}

// EventTypes returns nil: filtering happens in OnEvent.
func (h *WebhookHook) EventTypes() []events.EventType { return nil }

func (h *WebhookHook) meetsMinSeverity(s finding.Severity) bool {
	minOrder, ok := severityOrder[h.opts.MinSeverity]
	if !ok {
		return true
	}
	order, ok := severityOrder[s]
	if !ok {
		return true
	}
	return order >= minOrder
}

func (h *WebhookHook) sendWithRetry(ctx context.Context, eventType events.EventType, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < h.opts.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", defaults.Product+"/"+defaults.Version)
		req.Header.Set("X-Auditkit-Event-Type", string(eventType))
		for k, v := range h.opts.Headers {
			req.Header.Set(k, v)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		return fmt.Errorf("client error: %d", resp.StatusCode)
	}
	return lastErr
}
