// Package alert posts operational failure notifications to Slack.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
)

// Notifier reports fatal pipeline failures. A Notifier constructed without a
// webhook URL is a no-op, so callers never need to nil-check.
type Notifier struct {
	logger     *slog.Logger
	webhookURL string
}

// NewNotifier constructs a notifier. An empty webhookURL disables delivery.
func NewNotifier(logger *slog.Logger, webhookURL string) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger, webhookURL: webhookURL}
}

// Enabled reports whether notifications will actually be delivered.
func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

// BatchFailed posts a failure notice for a batch run. Delivery errors are
// logged, never propagated; alerting must not make a failing batch worse.
func (n *Notifier) BatchFailed(ctx context.Context, batchID string, cause error) {
	if !n.Enabled() {
		return
	}

	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf(":rotating_light: Triage batch failed\n*Batch:* %s\n*Error:* %v\n*At:* %s",
			batchID, cause, time.Now().UTC().Format(time.RFC3339)),
	}
	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		n.logger.Warn("slack notification failed",
			slog.String("batch_id", batchID), slog.Any("error", err))
	}
}
