package profile

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

// InMemory stores profiles in process memory. Email and principal indexes
// mirror the unique indexes of the Postgres schema.
type InMemory struct {
	mu          sync.RWMutex
	byID        map[id.ProfileID]*models.Profile
	byEmail     map[string]id.ProfileID
	byPrincipal map[id.PrincipalID]id.ProfileID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:        make(map[id.ProfileID]*models.Profile),
		byEmail:     make(map[string]id.ProfileID),
		byPrincipal: make(map[id.PrincipalID]id.ProfileID),
	}
}

// CreateIfEmailAvailable inserts p unless its email or principal is taken.
func (s *InMemory) CreateIfEmailAvailable(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[p.Email]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byID[p.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if p.PrincipalID != nil {
		if _, ok := s.byPrincipal[*p.PrincipalID]; ok {
			return sentinel.ErrAlreadyUsed
		}
		s.byPrincipal[*p.PrincipalID] = p.ID
	}
	s.byID[p.ID] = clone(p)
	s.byEmail[p.Email] = p.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, profileID id.ProfileID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byID[profileID]; ok {
		return clone(p), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if profileID, ok := s.byEmail[email]; ok {
		return clone(s.byID[profileID]), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByPrincipalID(_ context.Context, principalID id.PrincipalID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if profileID, ok := s.byPrincipal[principalID]; ok {
		return clone(s.byID[profileID]), nil
	}
	return nil, sentinel.ErrNotFound
}

// MarkVouched sets the vouched fields only if the profile is not vouched yet.
// Returns sentinel.ErrInvalidState when it already is.
func (s *InMemory) MarkVouched(_ context.Context, profileID id.ProfileID, vouchedBy *id.ProfileID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[profileID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.VouchedAt != nil {
		return sentinel.ErrInvalidState
	}
	p.ApplyVouch(cloneProfileID(vouchedBy), at)
	return nil
}

// BindPrincipal attaches principalID to an unbound profile. Rebinding to the
// same principal is a no-op; binding to another returns sentinel.ErrAlreadyUsed.
func (s *InMemory) BindPrincipal(_ context.Context, profileID id.ProfileID, principalID id.PrincipalID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[profileID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.PrincipalID != nil {
		if *p.PrincipalID == principalID {
			return nil
		}
		return sentinel.ErrAlreadyUsed
	}
	if _, taken := s.byPrincipal[principalID]; taken {
		return sentinel.ErrAlreadyUsed
	}
	p.ApplyClaim(principalID, at)
	s.byPrincipal[principalID] = profileID
	return nil
}

func (s *InMemory) SetRole(_ context.Context, profileID id.ProfileID, role models.Role, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[profileID]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.Role = role
	p.UpdatedAt = at
	return nil
}

// ListVouched returns vouched profiles, oldest vouch first.
func (s *InMemory) ListVouched(_ context.Context) ([]*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Profile
	for _, p := range s.byID {
		if p.VouchedAt != nil {
			out = append(out, clone(p))
		}
	}
	slices.SortFunc(out, func(a, b *models.Profile) int {
		return a.VouchedAt.Compare(*b.VouchedAt)
	})
	return out, nil
}

// Snapshot copies the store and returns a func restoring that copy.
func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	byID := make(map[id.ProfileID]*models.Profile, len(s.byID))
	for k, v := range s.byID {
		byID[k] = clone(v)
	}
	byEmail := maps.Clone(s.byEmail)
	byPrincipal := maps.Clone(s.byPrincipal)
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.byID = byID
		s.byEmail = byEmail
		s.byPrincipal = byPrincipal
	}
}

func clone(p *models.Profile) *models.Profile {
	c := *p
	if p.PrincipalID != nil {
		pid := *p.PrincipalID
		c.PrincipalID = &pid
	}
	if p.VouchedAt != nil {
		at := *p.VouchedAt
		c.VouchedAt = &at
	}
	c.VouchedBy = cloneProfileID(p.VouchedBy)
	return &c
}

func cloneProfileID(v *id.ProfileID) *id.ProfileID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
