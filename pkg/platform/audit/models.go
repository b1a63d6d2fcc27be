package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so they can be
// routed and retained differently.
type EventCategory string

const (
	// CategoryCompliance covers trust-graph state changes. The vouch graph is the
	// membership audit trail, these events mirror it with actor and request context.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers denials and identity events useful for forensics.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// ActorID is the profile or principal that performed the action.
	ActorID string
	// Subject is the entity acted upon (profile, join request, email).
	Subject   string
	Action    string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	// Join request ledger
	EventJoinRequestSubmitted AuditEvent = "join_request_submitted"
	EventJoinRequestApproved  AuditEvent = "join_request_approved"
	EventJoinRequestRejected  AuditEvent = "join_request_rejected"

	// Vouch graph
	EventProfileVouched AuditEvent = "profile_vouched"
	EventVouchRepaired  AuditEvent = "vouch_repaired"

	// Provisioning
	EventAccountProvisioned AuditEvent = "account_provisioned"
	EventProvisionFailed    AuditEvent = "provision_failed"

	// Identity
	EventAccountCreated     AuditEvent = "account_created"
	EventAccountConfirmed   AuditEvent = "account_confirmed"
	EventActivationReissued AuditEvent = "activation_reissued"
	EventSessionStarted     AuditEvent = "session_started"
	EventSessionEnded       AuditEvent = "session_ended"
	EventProfileClaimed     AuditEvent = "profile_claimed"

	// Access guard
	EventAccessDenied AuditEvent = "access_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventJoinRequestSubmitted: CategoryOperations,
	EventJoinRequestApproved:  CategoryCompliance,
	EventJoinRequestRejected:  CategoryCompliance,
	EventProfileVouched:       CategoryCompliance,
	EventVouchRepaired:        CategoryCompliance,
	EventAccountProvisioned:   CategoryCompliance,
	EventProfileClaimed:       CategoryCompliance,

	EventProvisionFailed: CategorySecurity,
	EventAccessDenied:    CategorySecurity,
	EventSessionEnded:    CategorySecurity,

	EventAccountConfirmed:   CategorySecurity,
	EventActivationReissued: CategorySecurity,

	EventAccountCreated: CategoryOperations,
	EventSessionStarted: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
