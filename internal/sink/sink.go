// Package sink implements the External Messaging Sink of spec.md §4.5:
// a thin, best-effort adapter to the messaging-channel gateway, which
// the core treats purely as a send(recipient, text) collaborator.
// Grounded on the teacher's outbound fire-and-forget style in
// pkg/abci/bridge.go, adapted from a blockchain bridge call to a
// generic webhook POST, since no component here needs a chain bridge
// but every component needs a best-effort external notifier.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookSink posts {recipient, text} to a configured URL with a
// per-call timeout (spec.md §5, "≤ 5s ... abandoned silently").
type WebhookSink struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewWebhookSink(url string, timeout time.Duration, logger *zap.Logger) *WebhookSink {
	return &WebhookSink{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

type payload struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// Send implements matching.MessagingSink. A non-2xx response or
// transport error is logged and reported as ok=false; callers never
// treat a failed send as fatal (spec.md §4.5, §7 "Publish and sink
// failures are logged only").
func (w *WebhookSink) Send(recipient, text string) (bool, error) {
	body, err := json.Marshal(payload{Recipient: recipient, Text: text})
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("messaging sink send failed", zap.String("recipient", recipient), zap.Error(err))
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("messaging sink returned non-success status",
			zap.String("recipient", recipient), zap.Int("status", resp.StatusCode))
		return false, nil
	}
	return true, nil
}

// NoopSink discards every message. Used when no gateway URL is
// configured, so the core can run without an external messaging
// collaborator wired up.
type NoopSink struct {
	logger *zap.Logger
}

func NewNoopSink(logger *zap.Logger) *NoopSink { return &NoopSink{logger: logger} }

func (n *NoopSink) Send(recipient, text string) (bool, error) {
	n.logger.Debug("messaging sink not configured, dropping message", zap.String("recipient", recipient))
	return true, nil
}
