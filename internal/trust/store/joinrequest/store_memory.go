package joinrequest

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

// InMemory stores join requests in process memory.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.JoinRequestID]*models.JoinRequest
	byEmail map[string]id.JoinRequestID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.JoinRequestID]*models.JoinRequest),
		byEmail: make(map[string]id.JoinRequestID),
	}
}

// CreateIfEmailAvailable inserts r unless a request with its email exists.
func (s *InMemory) CreateIfEmailAvailable(_ context.Context, r *models.JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[r.Email]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byID[r.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.byID[r.ID] = clone(r)
	s.byEmail[r.Email] = r.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, requestID id.JoinRequestID) (*models.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.byID[requestID]; ok {
		return clone(r), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByIDForUpdate is FindByID; the in-memory transaction already serializes writers.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, requestID id.JoinRequestID) (*models.JoinRequest, error) {
	return s.FindByID(ctx, requestID)
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if requestID, ok := s.byEmail[email]; ok {
		return clone(s.byID[requestID]), nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByStatus returns requests with status, oldest first.
func (s *InMemory) ListByStatus(_ context.Context, status models.JoinRequestStatus) ([]*models.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.JoinRequest
	for _, r := range s.byID {
		if r.Status == status {
			out = append(out, clone(r))
		}
	}
	slices.SortFunc(out, func(a, b *models.JoinRequest) int {
		return a.RequestedAt.Compare(b.RequestedAt)
	})
	return out, nil
}

// MarkReviewed writes the review fields of r only if the stored request is
// still pending. Returns sentinel.ErrInvalidState otherwise.
func (s *InMemory) MarkReviewed(_ context.Context, r *models.JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != models.JoinRequestPending {
		return sentinel.ErrInvalidState
	}
	updated := clone(stored)
	updated.Status = r.Status
	updated.ReviewedBy = cloneProfileID(r.ReviewedBy)
	updated.VoucherID = cloneProfileID(r.VoucherID)
	updated.ProfileID = cloneProfileID(r.ProfileID)
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		updated.ReviewedAt = &at
	}
	s.byID[r.ID] = updated
	return nil
}

// LinkProfile sets the matched profile on a request that has none yet.
func (s *InMemory) LinkProfile(_ context.Context, requestID id.JoinRequestID, profileID id.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[requestID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.ProfileID != nil {
		if *stored.ProfileID == profileID {
			return nil
		}
		return sentinel.ErrInvalidState
	}
	pid := profileID
	stored.ProfileID = &pid
	return nil
}

// Snapshot copies the store and returns a func restoring that copy.
func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	byID := make(map[id.JoinRequestID]*models.JoinRequest, len(s.byID))
	for k, v := range s.byID {
		byID[k] = clone(v)
	}
	byEmail := maps.Clone(s.byEmail)
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.byID = byID
		s.byEmail = byEmail
	}
}

func clone(r *models.JoinRequest) *models.JoinRequest {
	c := *r
	c.ReviewedBy = cloneProfileID(r.ReviewedBy)
	c.VoucherID = cloneProfileID(r.VoucherID)
	c.ProfileID = cloneProfileID(r.ProfileID)
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		c.ReviewedAt = &at
	}
	return &c
}

func cloneProfileID(v *id.ProfileID) *id.ProfileID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
