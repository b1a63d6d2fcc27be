// Package models holds identity-store records: accounts, sessions and the
// principal view the rest of the system consumes.
package models

import (
	"time"

	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// AccountStatus tracks whether an account can sign in.
type AccountStatus string

const (
	AccountStatusActive            AccountStatus = "active"
	AccountStatusPendingActivation AccountStatus = "pending_activation"
)

// Account is an identity-store registration. Every account starts in
// pending_activation with an activation token hash. Self-registered accounts
// also carry the password chosen at sign-up; provisioned ones have none
// until activation.
type Account struct {
	ID    id.PrincipalID
	Email string
	// Name is the display name given at sign-up, used for the profile
	// created on confirmation.
	Name                string
	PasswordHash        []byte
	ActivationHash      []byte
	ActivationExpiresAt *time.Time
	Status              AccountStatus
	CreatedAt           time.Time
}

// NewAccount creates an active account with a password hash.
func NewAccount(principalID id.PrincipalID, email string, passwordHash []byte, now time.Time) (*Account, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account email cannot be empty")
	}
	if len(passwordHash) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account password hash cannot be empty")
	}
	return &Account{
		ID:           principalID,
		Email:        email,
		PasswordHash: passwordHash,
		Status:       AccountStatusActive,
		CreatedAt:    now,
	}, nil
}

// NewProvisionedAccount creates an account that must be activated before use.
func NewProvisionedAccount(principalID id.PrincipalID, email string, activationHash []byte, expiresAt, now time.Time) (*Account, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account email cannot be empty")
	}
	return &Account{
		ID:                  principalID,
		Email:               email,
		ActivationHash:      activationHash,
		ActivationExpiresAt: &expiresAt,
		Status:              AccountStatusPendingActivation,
		CreatedAt:           now,
	}, nil
}

// NewRegisteredAccount creates a self-registered account that stays pending
// until its owner confirms the email with the activation token.
func NewRegisteredAccount(principalID id.PrincipalID, email, name string, passwordHash, activationHash []byte, expiresAt, now time.Time) (*Account, error) {
	if len(passwordHash) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account password hash cannot be empty")
	}
	a, err := NewProvisionedAccount(principalID, email, activationHash, expiresAt, now)
	if err != nil {
		return nil, err
	}
	a.Name = name
	a.PasswordHash = passwordHash
	return a, nil
}

// SelfRegistered reports whether the password was chosen at sign-up.
func (a *Account) SelfRegistered() bool {
	return a.Status == AccountStatusPendingActivation && len(a.PasswordHash) > 0
}

// ActivationExpired reports a pending account whose token can no longer be used.
func (a *Account) ActivationExpired(now time.Time) bool {
	return a.Status == AccountStatusPendingActivation &&
		(a.ActivationExpiresAt == nil || now.After(*a.ActivationExpiresAt))
}

// CanLogin rejects accounts that have not been activated.
func (a *Account) CanLogin() error {
	if a.Status != AccountStatusActive {
		return dErrors.New(dErrors.CodeUnauthenticated, "account is not activated")
	}
	return nil
}

// CanActivate checks the account is awaiting activation and the token window is open.
func (a *Account) CanActivate(now time.Time) error {
	if a.Status != AccountStatusPendingActivation {
		return dErrors.New(dErrors.CodeConflict, "account is already active")
	}
	if a.ActivationExpiresAt == nil || now.After(*a.ActivationExpiresAt) {
		return dErrors.New(dErrors.CodeUnauthenticated, "activation token expired")
	}
	return nil
}

// ApplyActivation sets the password and clears the activation token.
func (a *Account) ApplyActivation(passwordHash []byte) {
	a.PasswordHash = passwordHash
	a.ActivationHash = nil
	a.ActivationExpiresAt = nil
	a.Status = AccountStatusActive
}

// ApplyReissue replaces the activation token of a pending account. A nil
// passwordHash clears any password chosen at sign-up.
func (a *Account) ApplyReissue(passwordHash, activationHash []byte, expiresAt time.Time) {
	a.PasswordHash = passwordHash
	a.ActivationHash = activationHash
	a.ActivationExpiresAt = &expiresAt
}

// SessionStatus is the lifecycle position of a session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// Session is a signed-in period for one principal. Access tokens are only
// honoured while their session is active and unexpired.
type Session struct {
	ID                id.SessionID   `json:"id"`
	PrincipalID       id.PrincipalID `json:"principal_id"`
	Status            SessionStatus  `json:"status"`
	DeviceDisplayName string         `json:"device_display_name,omitempty"`
	ClientIP          string         `json:"client_ip,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	ExpiresAt         time.Time      `json:"expires_at"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
}

func (s *Session) IsActive(now time.Time) bool {
	return s.Status == SessionStatusActive && now.Before(s.ExpiresAt)
}

// CanEnd rejects ending a session twice.
func (s *Session) CanEnd() error {
	if s.Status == SessionStatusEnded {
		return dErrors.New(dErrors.CodeConflict, "session already ended")
	}
	return nil
}

func (s *Session) ApplyEnd(now time.Time) {
	s.Status = SessionStatusEnded
	s.EndedAt = &now
}

// Principal is the authenticated subject of the current request.
type Principal struct {
	ID        id.PrincipalID
	SessionID id.SessionID
	Email     string
}

// ProvisionedAccount reports the outcome of CreateAccount.
type ProvisionedAccount struct {
	PrincipalID id.PrincipalID
	Email       string
	// Created is false when an account with the email already existed.
	Created bool
	// ActivationToken is set whenever a token was issued or reissued and
	// must be delivered to the account owner.
	ActivationToken string
}
