package integrations

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/executors"
)

// WebhookNotifier delivers notifications by posting a JSON document to
// the webhook registered for the notification's channel. The payload
// carries a Slack-compatible "text" field alongside the structured
// message, so a channel can point straight at an incoming-webhook URL.
type WebhookNotifier struct {
	endpoints map[string]string
	caller    executors.HTTPCaller
	logger    *zap.Logger
}

var _ executors.Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier maps channels to webhook URLs. The "" key, when
// present, is the fallback for unmapped channels.
func NewWebhookNotifier(endpoints map[string]string, caller executors.HTTPCaller, logger *zap.Logger) *WebhookNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookNotifier{
		endpoints: endpoints,
		caller:    caller,
		logger:    logger.With(zap.String("component", "webhook_notifier")),
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, msg executors.Notification) error {
	endpoint, ok := n.endpoints[msg.Channel]
	if !ok {
		endpoint, ok = n.endpoints[""]
	}
	if !ok || endpoint == "" {
		return fmt.Errorf("no webhook endpoint for channel %q", msg.Channel)
	}

	resp, err := n.caller.Call(ctx, executors.CallRequest{
		URL:    endpoint,
		Method: http.MethodPost,
		Body: map[string]any{
			"channel":    msg.Channel,
			"recipients": msg.Recipients,
			"subject":    msg.Subject,
			"body":       msg.Body,
			"template":   msg.Template,
			"vars":       msg.Vars,
			"text":       renderText(msg),
		},
	})
	if err != nil {
		return fmt.Errorf("deliver to channel %q: %w", msg.Channel, err)
	}
	if resp.Status < 200 || resp.Status > 299 {
		return fmt.Errorf("webhook for channel %q returned status %d", msg.Channel, resp.Status)
	}

	n.logger.Info("notification delivered",
		zap.String("channel", msg.Channel),
		zap.Int("recipients", len(msg.Recipients)),
	)
	return nil
}

// renderText flattens a notification into one human-readable line.
func renderText(msg executors.Notification) string {
	var parts []string
	if msg.Subject != "" {
		parts = append(parts, msg.Subject)
	}
	if msg.Body != "" {
		parts = append(parts, msg.Body)
	} else if msg.Template != "" {
		parts = append(parts, "template: "+msg.Template)
	}
	return strings.Join(parts, "\n")
}
