// Package account persists identity-store accounts.
package account

import (
	"context"
	"sync"
	"time"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

// InMemory keeps accounts in process memory, indexed by normalized email.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.PrincipalID]*models.Account
	byEmail map[string]id.PrincipalID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.PrincipalID]*models.Account),
		byEmail: make(map[string]id.PrincipalID),
	}
}

func (s *InMemory) Create(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[a.Email]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byID[a.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.byID[a.ID] = clone(a)
	s.byEmail[a.Email] = a.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, principalID id.PrincipalID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.byID[principalID]; ok {
		return clone(a), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if principalID, ok := s.byEmail[email]; ok {
		return clone(s.byID[principalID]), nil
	}
	return nil, sentinel.ErrNotFound
}

// Activate sets the password of a pending account. A second activation
// returns ErrInvalidState.
func (s *InMemory) Activate(_ context.Context, principalID id.PrincipalID, passwordHash []byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[principalID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if a.Status != models.AccountStatusPendingActivation {
		return sentinel.ErrInvalidState
	}
	a.ApplyActivation(passwordHash)
	return nil
}

// ReissueActivation stores the name, password hash and activation token of a
// pending account. An active account returns ErrInvalidState.
func (s *InMemory) ReissueActivation(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != models.AccountStatusPendingActivation {
		return sentinel.ErrInvalidState
	}
	reissued := clone(a)
	stored.Name = reissued.Name
	stored.PasswordHash = reissued.PasswordHash
	stored.ActivationHash = reissued.ActivationHash
	stored.ActivationExpiresAt = reissued.ActivationExpiresAt
	return nil
}

func clone(a *models.Account) *models.Account {
	c := *a
	if a.ActivationExpiresAt != nil {
		at := *a.ActivationExpiresAt
		c.ActivationExpiresAt = &at
	}
	return &c
}
