// Package notify provides a provider-agnostic interface for operator-
// visible notifications (payment failure, suspension, overage, 90%-usage
// warning) behind a small Provider/Registry-style abstraction.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/wisbric/hrctl/pkg/tenant"
)

// Kind categorizes a notification for formatting and routing.
type Kind string

const (
	KindSuspension   Kind = "suspension"
	KindCancellation Kind = "cancellation"
	KindPaymentFail  Kind = "payment_failure"
	KindOverage      Kind = "overage"
	KindUsageWarning Kind = "usage_warning"
	KindPlanChange   Kind = "plan_change"
)

// Message is a single operator-facing notification.
type Message struct {
	TenantID tenant.ID
	Kind     Kind
	Text     string
}

// Notifier sends operator-visible notifications. Implementations must be
// nil-safe to call when not configured (IsEnabled() pattern).
type Notifier interface {
	Notify(ctx context.Context, msg Message)
	IsEnabled() bool
}

// LogNotifier just logs the message — the fallback when no provider is
// configured, or when a configured provider reports itself disabled.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier { return &LogNotifier{logger: logger} }

func (n *LogNotifier) Notify(_ context.Context, msg Message) {
	n.logger.Info("operator notification", "tenant_id", msg.TenantID, "kind", msg.Kind, "text", msg.Text)
}

func (n *LogNotifier) IsEnabled() bool { return true }

// SlackNotifier posts operator notifications to a configured Slack channel.
// Enabled iff a bot token is present.
type SlackNotifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier creates a Slack-backed Notifier. If botToken is empty,
// the notifier is disabled and falls back to logging.
func NewSlackNotifier(botToken, channel string, logger *slog.Logger) *SlackNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackNotifier{client: client, channel: channel, logger: logger}
}

func (n *SlackNotifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

func (n *SlackNotifier) Notify(ctx context.Context, msg Message) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, logging instead", "tenant_id", msg.TenantID, "kind", msg.Kind)
		n.logger.Info("operator notification", "tenant_id", msg.TenantID, "kind", msg.Kind, "text", msg.Text)
		return
	}

	text := fmt.Sprintf("[%s] tenant %s: %s", msg.Kind, msg.TenantID, msg.Text)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Error("posting notification to slack", "error", err, "tenant_id", msg.TenantID, "kind", msg.Kind)
	}
}

// AlertRecorder persists a notification as an operator-visible alert row.
// pkg/operator implements this so the dashboard's severity histogram and
// alert weight reflect real overage/payment-failure/suspension events
// without notify importing pkg/operator.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, tenantID tenant.ID, kind Kind, text string) error
}

// RecordingNotifier wraps a Notifier and also persists each notification as
// an alert via the given recorder. Recording failures are logged and never
// block delivery through the inner notifier.
type RecordingNotifier struct {
	inner    Notifier
	recorder AlertRecorder
	logger   *slog.Logger
}

func NewRecordingNotifier(inner Notifier, recorder AlertRecorder, logger *slog.Logger) *RecordingNotifier {
	return &RecordingNotifier{inner: inner, recorder: recorder, logger: logger}
}

func (n *RecordingNotifier) IsEnabled() bool { return n.inner.IsEnabled() }

func (n *RecordingNotifier) Notify(ctx context.Context, msg Message) {
	n.inner.Notify(ctx, msg)
	if err := n.recorder.RecordAlert(ctx, msg.TenantID, msg.Kind, msg.Text); err != nil {
		n.logger.Error("recording alert", "error", err, "tenant_id", msg.TenantID, "kind", msg.Kind)
	}
}

// InvitationDispatcher sends the tenant admin's invitation/reset-password
// email during provisioning. Real email transport is intentionally absent;
// this is the seam where one plugs in.
type InvitationDispatcher interface {
	DispatchInvitation(ctx context.Context, email string, tenantID tenant.ID, resetToken string)
}

// LogInvitationDispatcher logs the would-be invitation instead of sending
// one over real email transport.
type LogInvitationDispatcher struct {
	logger *slog.Logger
}

func NewLogInvitationDispatcher(logger *slog.Logger) *LogInvitationDispatcher {
	return &LogInvitationDispatcher{logger: logger}
}

func (d *LogInvitationDispatcher) DispatchInvitation(_ context.Context, email string, tenantID tenant.ID, resetToken string) {
	d.logger.Info("would dispatch admin invitation email",
		"email", email, "tenant_id", tenantID, "reset_token", resetToken, "activation_link", fmt.Sprintf("/activate?token=%s", resetToken))
}
