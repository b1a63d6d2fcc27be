// Package notify is the fire-and-forget messaging boundary. Delivery of email
// content is out of scope; notifications are handed to a sink (log or Kafka)
// for a downstream mailer.
package notify

import (
	"context"
	"log/slog"
	"time"
)

//go:generate mockgen -source=notify.go -destination=mocks/mocks.go -package=mocks Notifier

// Kind identifies the template a downstream mailer renders.
type Kind string

const (
	KindJoinRequestSubmitted Kind = "join_request_submitted"
	KindJoinRequestApproved  Kind = "join_request_approved"
	KindInvite               Kind = "invite"
	KindAccountProvisioned   Kind = "account_provisioned"
	KindAccountConfirmation  Kind = "account_confirmation"
)

// RecipientStewards addresses every steward rather than a single mailbox.
const RecipientStewards = "stewards"

// Notification is one outbound message request.
type Notification struct {
	Kind      Kind              `json:"kind"`
	Recipient string            `json:"recipient"`
	Payload   map[string]string `json:"payload,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier hands a notification to the messaging collaborator. Errors are
// reported so callers can log them; callers never roll back on failure.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log. It is the sink when
// no broker is configured and the fallback while the broker circuit is open.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Notification) error {
	n.logger.InfoContext(ctx, "notification",
		"kind", string(msg.Kind),
		"recipient", msg.Recipient,
		"request_id", msg.RequestID,
	)
	return nil
}
