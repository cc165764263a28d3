package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"taskkash/internal/pkg/metrics"
)

// Notifier is the service-facing entry point. Every method is best-effort:
// publish failures are logged and counted, never returned.
type Notifier struct {
	pub Publisher
}

// NewNotifier creates a Notifier over pub.
func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub}
}

// NotifyUser sends a message to one user's notification feed.
func (n *Notifier) NotifyUser(ctx context.Context, userID int64, event, title, body string) {
	n.publish(ctx, Message{Kind: KindUser, Event: event, UserID: userID, Title: title, Body: body})
}

// NotifyAdmins sends a message to every admin channel.
func (n *Notifier) NotifyAdmins(ctx context.Context, userID int64, event, title, body string) {
	n.publish(ctx, Message{Kind: KindAdmin, Event: event, UserID: userID, Title: title, Body: body})
}

// SendEmail queues an email.
func (n *Notifier) SendEmail(ctx context.Context, to, subject, body string) {
	n.publish(ctx, Message{Kind: KindEmail, To: to, Subject: subject, Body: body})
}

func (n *Notifier) publish(ctx context.Context, msg Message) {
	msg.ID = uuid.NewString()
	if err := n.pub.Publish(ctx, msg); err != nil {
		log.Warn().Err(err).
			Str("message_id", msg.ID).
			Str("kind", string(msg.Kind)).
			Str("event", msg.Event).
			Int64("user_id", msg.UserID).
			Msg("Failed to publish notification")
		metrics.Notifications.WithLabelValues(string(msg.Kind), "publish_failed").Inc()
		return
	}
	metrics.Notifications.WithLabelValues(string(msg.Kind), "published").Inc()
}
