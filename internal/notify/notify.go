// Package notify turns account emails into queue events for the mail worker.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindVerification  = "verify_email"
	KindPasswordReset = "password_reset"
	KindWelcome       = "welcome"
)

// Event is the JSON message consumed by the mail worker.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Recipient   string    `json:"recipient"`
	DisplayName string    `json:"display_name"`
	Token       string    `json:"token,omitempty"`
	Link        string    `json:"link,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher is the subset of *mq.MQ used for delivery.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, value any, attrs map[string]string) (string, error)
}

// QueueNotifier publishes notification events on a single channel.
type QueueNotifier struct {
	publisher Publisher
	channel   string
	appURL    string
	logger    *slog.Logger
	now       func() time.Time
}

func NewQueueNotifier(publisher Publisher, channel, appURL string, logger *slog.Logger) *QueueNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueNotifier{
		publisher: publisher,
		channel:   channel,
		appURL:    strings.TrimRight(appURL, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

func (n *QueueNotifier) SendVerificationEmail(ctx context.Context, to, token, displayName string) error {
	return n.publish(ctx, n.event(KindVerification, to, displayName, token, "/verify-email"))
}

func (n *QueueNotifier) SendPasswordResetEmail(ctx context.Context, to, token, displayName string) error {
	return n.publish(ctx, n.event(KindPasswordReset, to, displayName, token, "/reset-password"))
}

func (n *QueueNotifier) SendWelcomeEmail(ctx context.Context, to, displayName string) error {
	return n.publish(ctx, n.event(KindWelcome, to, displayName, "", ""))
}

func (n *QueueNotifier) event(kind, to, displayName, token, path string) Event {
	event := Event{
		ID:          uuid.New(),
		Kind:        kind,
		Recipient:   to,
		DisplayName: displayName,
		Token:       token,
		CreatedAt:   n.now().UTC(),
	}
	if token != "" {
		event.Link = Link(n.appURL, path, token)
	}
	return event
}

func (n *QueueNotifier) publish(ctx context.Context, event Event) error {
	messageID, err := n.publisher.PublishJSON(ctx, n.channel, event, map[string]string{"kind": event.Kind})
	if err != nil {
		return fmt.Errorf("publish %s notification: %w", event.Kind, err)
	}
	n.logger.Debug("notification queued",
		slog.String("kind", event.Kind),
		slog.String("event_id", event.ID.String()),
		slog.String("message_id", messageID),
	)
	return nil
}

// Link builds a frontend URL carrying token as a query parameter.
func Link(appURL, path, token string) string {
	return strings.TrimRight(appURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// LogNotifier logs notifications instead of delivering them. Raw tokens
// are only written at debug level.
type LogNotifier struct {
	appURL string
	logger *slog.Logger
}

func NewLogNotifier(appURL string, logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{appURL: strings.TrimRight(appURL, "/"), logger: logger}
}

func (n *LogNotifier) SendVerificationEmail(ctx context.Context, to, token, displayName string) error {
	n.log(ctx, KindVerification, to, displayName, Link(n.appURL, "/verify-email", token))
	return nil
}

func (n *LogNotifier) SendPasswordResetEmail(ctx context.Context, to, token, displayName string) error {
	n.log(ctx, KindPasswordReset, to, displayName, Link(n.appURL, "/reset-password", token))
	return nil
}

func (n *LogNotifier) SendWelcomeEmail(ctx context.Context, to, displayName string) error {
	n.log(ctx, KindWelcome, to, displayName, "")
	return nil
}

func (n *LogNotifier) log(ctx context.Context, kind, to, displayName, link string) {
	n.logger.InfoContext(ctx, "notification not delivered, no queue configured",
		slog.String("kind", kind),
		slog.String("recipient", to),
		slog.String("display_name", displayName),
	)
	if link != "" {
		n.logger.DebugContext(ctx, "notification link", slog.String("kind", kind), slog.String("link", link))
	}
}
