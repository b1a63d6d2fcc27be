// Package service is the identity store: accounts, password and activation
// flows, sessions and the current principal.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/notify"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/session"
	trustmodels "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Activate(ctx context.Context, principalID id.PrincipalID, passwordHash []byte, at time.Time) error
	ReissueActivation(ctx context.Context, a *models.Account) error
}

type SessionStore interface {
	Create(ctx context.Context, sess *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	EndIfActive(ctx context.Context, sessionID id.SessionID, at time.Time) (*models.Session, error)
}

type TokenIssuer interface {
	GenerateAccessToken(principalID id.PrincipalID, sessionID id.SessionID, expiresIn time.Duration) (string, error)
}

// ProfileEnsurer binds a community profile at first session establishment.
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, principalID id.PrincipalID, email, name string) (*trustmodels.Profile, error)
}

// JoinRequester records the join request bundled with a registration.
type JoinRequester interface {
	SubmitJoinRequest(ctx context.Context, name, email, intro string) (*trustmodels.JoinRequest, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type SessionPublisher interface {
	Publish(ctx context.Context, e session.Event)
}

// Config holds token and session lifetimes.
type Config struct {
	TokenTTL      time.Duration
	SessionTTL    time.Duration
	ActivationTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

const (
	defaultTokenTTL      = 15 * time.Minute
	defaultSessionTTL    = 30 * 24 * time.Hour
	defaultActivationTTL = 7 * 24 * time.Hour
	minPasswordLength    = 8
)

func (c Config) withDefaults() Config {
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaultTokenTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.ActivationTTL <= 0 {
		c.ActivationTTL = defaultActivationTTL
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	return c
}

type Service struct {
	accounts  AccountStore
	sessions  SessionStore
	tokens    TokenIssuer
	profiles  ProfileEnsurer
	joins     JoinRequester
	audit     AuditPublisher
	publisher SessionPublisher
	notifier  notify.Notifier
	logger    *slog.Logger
	cfg       Config
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithJoinRequests(j JoinRequester) Option {
	return func(s *Service) {
		s.joins = j
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

// WithSessionPublisher announces sign-in and sign-out to session listeners.
func WithSessionPublisher(p SessionPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithNotifier delivers account confirmation tokens.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func New(accounts AccountStore, sessions SessionStore, tokens TokenIssuer, profiles ProfileEnsurer, cfg Config, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		sessions: sessions,
		tokens:   tokens,
		profiles: profiles,
		logger:   slog.Default(),
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// emitAudit records an identity event. Failures are logged; the account or
// session change has already been persisted.
func emitAudit(ctx context.Context, p AuditPublisher, logger *slog.Logger, event audit.AuditEvent, actor, subject, reason string) {
	if p == nil {
		return
	}
	if err := p.Emit(ctx, audit.Event{
		Action:  string(event),
		ActorID: actor,
		Subject: subject,
		Reason:  reason,
	}); err != nil {
		logger.ErrorContext(ctx, "failed to emit audit event",
			"action", string(event),
			"error", err,
		)
	}
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		s.logger.WarnContext(ctx, "no notifier configured", "kind", string(n.Kind))
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

func storageError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
