// Package service implements the trust graph state machine: profiles, the join
// request ledger and the vouch graph, mutated only inside StoreTx units of work.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	identitymodels "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/notify"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/session"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/metrics"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	emailutil "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/email"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

// Accounts is the identity store surface used by bulk provisioning.
type Accounts interface {
	// CreateAccount creates a pending-activation account for email, or reports
	// the existing one with Created=false. A token is returned whenever one
	// was issued.
	CreateAccount(ctx context.Context, email string) (*identitymodels.ProvisionedAccount, error)
	// RenewExpiredActivation issues a new token for a pending account whose
	// token expired and returns no token otherwise.
	RenewExpiredActivation(ctx context.Context, email string) (*identitymodels.ProvisionedAccount, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SessionPublisher announces profile changes so cached access decisions are dropped.
type SessionPublisher interface {
	Publish(ctx context.Context, e session.Event)
}

// Service orchestrates the trust graph.
type Service struct {
	tx       StoreTx
	reads    Stores
	accounts Accounts
	notifier notify.Notifier
	audit    AuditPublisher
	sessions SessionPublisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	bootstrapStewards    map[string]struct{}
	provisionConcurrency int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithAccounts(a Accounts) Option {
	return func(s *Service) {
		s.accounts = a
	}
}

func WithSessionPublisher(p SessionPublisher) Option {
	return func(s *Service) {
		s.sessions = p
	}
}

// WithBootstrapStewards grants the steward role to profiles with these emails
// when they are ensured at sign-in.
func WithBootstrapStewards(emails []string) Option {
	return func(s *Service) {
		for _, e := range emailutil.NormalizeAll(emails) {
			s.bootstrapStewards[e] = struct{}{}
		}
	}
}

// WithProvisionConcurrency bounds the number of join requests provisioned at once.
func WithProvisionConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.provisionConcurrency = n
		}
	}
}

// New constructs a Service. tx runs mutations; reads serves queries outside a
// transaction and must observe the same data.
func New(tx StoreTx, reads Stores, opts ...Option) *Service {
	s := &Service{
		tx:                   tx,
		reads:                reads,
		logger:               slog.Default(),
		tracer:               otel.Tracer("share/trust"),
		bootstrapStewards:    make(map[string]struct{}),
		provisionConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runInTx runs fn in a transaction and retries once when storage reports a
// transient failure. Precondition checks inside fn make the retry safe.
func (s *Service) runInTx(ctx context.Context, op string, fn func(ctx context.Context, stores Stores) error) error {
	err := s.tx.RunInTx(ctx, fn)
	if err == nil || !errors.Is(err, sentinel.ErrUnavailable) {
		return err
	}
	s.logger.WarnContext(ctx, "retrying transaction after transient failure",
		"operation", op,
		"error", err,
	)
	if s.metrics != nil {
		s.metrics.IncrementTxRetry()
	}
	err = s.tx.RunInTx(ctx, fn)
	if err != nil && errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "storage temporarily unavailable")
	}
	return err
}

// startSpan opens a span and returns a func that ends it with err's status and
// records the operation metric.
func (s *Service) startSpan(ctx context.Context, op string, attrs ...trace.SpanStartOption) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "trust."+op, attrs...)
	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start, result)
		}
	}
}

// emitAudit persists an audit event. Inside a transaction a failure aborts the
// unit of work.
func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, actor, subject, reason string) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, audit.Event{
		Action:  string(event),
		ActorID: actor,
		Subject: subject,
		Reason:  reason,
	})
}

// notify hands n to the messaging collaborator. Failures are logged only; the
// trust state change has already committed.
func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			"kind", string(n.Kind),
			"recipient", n.Recipient,
			"error", err,
		)
	}
}

// profileUpdated tells session subscribers that a bound profile changed.
func (s *Service) profileUpdated(ctx context.Context, p *models.Profile, at time.Time) {
	if s.sessions == nil || p == nil || p.PrincipalID == nil {
		return
	}
	s.sessions.Publish(ctx, session.Event{
		Kind:        session.EventProfileUpdated,
		PrincipalID: *p.PrincipalID,
		At:          at,
	})
}

// storageError translates an unexpected store failure. Transient failures keep
// sentinel.ErrUnavailable in the chain so runInTx can retry.
func storageError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// loadSteward loads actorID and requires the steward role.
func loadSteward(ctx context.Context, profiles ProfileStore, actorID id.ProfileID) (*models.Profile, error) {
	actor, err := profiles.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInsufficientCapability, "steward access required")
		}
		return nil, storageError(err, "failed to load steward profile")
	}
	if !actor.IsSteward() {
		return nil, dErrors.New(dErrors.CodeInsufficientCapability, "steward access required")
	}
	return actor, nil
}
