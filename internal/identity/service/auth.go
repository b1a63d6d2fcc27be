package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/device"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/notify"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/session"
	trustmodels "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	emailutil "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/email"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

// RegisterInput is a self-service sign-up. Intro, when present, is submitted
// as the applicant's join request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Intro    string
}

// AuthResult is a freshly established session.
type AuthResult struct {
	AccessToken string
	ExpiresIn   time.Duration
	Session     *models.Session
	Profile     *trustmodels.Profile
}

// RegisterResult is an accepted sign-up. The account stays pending until the
// owner confirms the email with the token sent to it.
type RegisterResult struct {
	PrincipalID id.PrincipalID
	Email       string
	// JoinRequest is set when registration bundled one.
	JoinRequest *trustmodels.JoinRequest
}

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthenticated, "invalid email or password")

// Register records a pending account and mails a confirmation token to the
// email. No session starts and no profile is bound until Activate proves the
// caller controls the mailbox. Registering again before confirming replaces
// the password and the token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := emailutil.Normalize(in.Email)
	name := strings.TrimSpace(in.Name)
	if !emailutil.Valid(email) {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	token, tokenHash, err := issueActivationToken(s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	account, err := models.NewRegisteredAccount(id.PrincipalID(uuid.New()), email, name, hash, tokenHash, now.Add(s.cfg.ActivationTTL), now)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, storageError(err, "failed to create account")
		}
		if account, err = s.restartRegistration(ctx, account); err != nil {
			return nil, err
		}
	} else {
		emitAudit(ctx, s.audit, s.logger, audit.EventAccountCreated, account.ID.String(), email, "registration")
	}

	s.notify(ctx, notify.Notification{
		Kind:      notify.KindAccountConfirmation,
		Recipient: email,
		Payload: map[string]string{
			"name":             name,
			"activation_token": token,
		},
		RequestID: requestcontext.RequestID(ctx),
		CreatedAt: now,
	})

	result := &RegisterResult{PrincipalID: account.ID, Email: email}
	if intro := strings.TrimSpace(in.Intro); intro != "" && s.joins != nil {
		result.JoinRequest = s.submitBundledRequest(ctx, name, email, intro)
	}
	return result, nil
}

// restartRegistration moves the sign-up in pending onto the unconfirmed
// account already holding its email. Active and provisioned accounts are a
// conflict.
func (s *Service) restartRegistration(ctx context.Context, pending *models.Account) (*models.Account, error) {
	existing, err := s.accounts.FindByEmail(ctx, pending.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, storageError(err, "failed to load account")
	}
	switch {
	case existing.SelfRegistered():
	case existing.Status == models.AccountStatusPendingActivation:
		return nil, dErrors.New(dErrors.CodeConflict, "an account was prepared for this email; use the activation link")
	default:
		return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
	}

	existing.Name = pending.Name
	existing.ApplyReissue(pending.PasswordHash, pending.ActivationHash, *pending.ActivationExpiresAt)
	if err := s.accounts.ReissueActivation(ctx, existing); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, storageError(err, "failed to restart registration")
	}
	emitAudit(ctx, s.audit, s.logger, audit.EventActivationReissued, existing.ID.String(), existing.Email, "registration")
	return existing, nil
}

// submitBundledRequest never fails the registration: the account exists
// either way and the applicant can be vouched directly.
func (s *Service) submitBundledRequest(ctx context.Context, name, email, intro string) *trustmodels.JoinRequest {
	request, err := s.joins.SubmitJoinRequest(ctx, name, email, intro)
	if err != nil {
		level := s.logger.WarnContext
		if dErrors.HasCode(err, dErrors.CodeDuplicateRequest) || dErrors.HasCode(err, dErrors.CodeAlreadyVouched) {
			level = s.logger.InfoContext
		}
		level(ctx, "bundled join request not submitted",
			"email", email,
			"error", err,
		)
		return nil
	}
	return request
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = emailutil.Normalize(email)
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, storageError(err, "failed to load account")
	}
	if err := account.CanLogin(); err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		s.logger.InfoContext(ctx, "login rejected",
			"principal_id", account.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, errInvalidCredentials
	}
	return s.startSession(ctx, account, "")
}

// Activate confirms a pending account with the token from its
// account_confirmation or account_provisioned notification, then signs it in.
// A self-registered account must present the password chosen at sign-up; a
// provisioned account sets its password here.
func (s *Service) Activate(ctx context.Context, email, token, password string) (*AuthResult, error) {
	invalid := dErrors.New(dErrors.CodeUnauthenticated, "invalid activation token")
	email = emailutil.Normalize(email)
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, invalid
		}
		return nil, storageError(err, "failed to load account")
	}
	now := requestcontext.Now(ctx)
	if err := account.CanActivate(now); err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(account.ActivationHash, []byte(token)); err != nil {
		return nil, invalid
	}

	hash := account.PasswordHash
	reason := "confirmation"
	if account.SelfRegistered() {
		if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
			return nil, invalid
		}
	} else {
		reason = "activation"
		if hash, err = bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
		}
	}
	if err := s.accounts.Activate(ctx, account.ID, hash, now); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "account is already active")
		}
		return nil, storageError(err, "failed to activate account")
	}
	account.ApplyActivation(hash)
	emitAudit(ctx, s.audit, s.logger, audit.EventAccountConfirmed, account.ID.String(), email, reason)
	return s.startSession(ctx, account, account.Name)
}

// startSession ensures the principal's profile, persists a session and mints
// an access token for it.
func (s *Service) startSession(ctx context.Context, account *models.Account, name string) (*AuthResult, error) {
	profile, err := s.profiles.EnsureProfile(ctx, account.ID, account.Email, name)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	sess := &models.Session{
		ID:                id.SessionID(uuid.New()),
		PrincipalID:       account.ID,
		Status:            models.SessionStatusActive,
		DeviceDisplayName: device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		ClientIP:          requestcontext.ClientIP(ctx),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, storageError(err, "failed to create session")
	}
	token, err := s.tokens.GenerateAccessToken(account.ID, sess.ID, s.cfg.TokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}

	emitAudit(ctx, s.audit, s.logger, audit.EventSessionStarted, account.ID.String(), sess.ID.String(), sess.DeviceDisplayName)
	s.publish(ctx, session.EventSignedIn, sess, now)
	return &AuthResult{AccessToken: token, ExpiresIn: s.cfg.TokenTTL, Session: sess, Profile: profile}, nil
}

// Logout ends the caller's session. Tokens minted for it stop validating.
func (s *Service) Logout(ctx context.Context) error {
	sessionID := requestcontext.SessionID(ctx)
	if sessionID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthenticated, "not signed in")
	}
	now := requestcontext.Now(ctx)
	sess, err := s.sessions.EndIfActive(ctx, sessionID, now)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeUnauthenticated, "session not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeConflict, "session already ended")
		}
		return storageError(err, "failed to end session")
	}
	emitAudit(ctx, s.audit, s.logger, audit.EventSessionEnded, sess.PrincipalID.String(), sess.ID.String(), "logout")
	s.publish(ctx, session.EventSignedOut, sess, now)
	return nil
}

func (s *Service) publish(ctx context.Context, kind session.EventKind, sess *models.Session, at time.Time) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, session.Event{
		Kind:        kind,
		PrincipalID: sess.PrincipalID,
		SessionID:   sess.ID,
		At:          at,
	})
}

// CurrentPrincipal resolves the caller bound to ctx by the auth middleware.
// It returns nil for anonymous callers and for sessions that ended or expired.
func (s *Service) CurrentPrincipal(ctx context.Context) (*models.Principal, error) {
	principalID := requestcontext.PrincipalID(ctx)
	sessionID := requestcontext.SessionID(ctx)
	if principalID.IsNil() || sessionID.IsNil() {
		return nil, nil
	}
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, storageError(err, "failed to load session")
	}
	if !sess.IsActive(requestcontext.Now(ctx)) || sess.PrincipalID != principalID {
		return nil, nil
	}
	account, err := s.accounts.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, storageError(err, "failed to load account")
	}
	return &models.Principal{ID: account.ID, SessionID: sess.ID, Email: account.Email}, nil
}

// IsSessionActive satisfies the auth middleware's session check.
func (s *Service) IsSessionActive(ctx context.Context, sessionID id.SessionID) (bool, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return sess.IsActive(requestcontext.Now(ctx)), nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if len(password) > 72 {
		return dErrors.New(dErrors.CodeValidation, "password must be at most 72 bytes")
	}
	return nil
}
