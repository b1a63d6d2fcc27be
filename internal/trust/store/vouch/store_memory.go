package vouch

import (
	"context"
	"slices"
	"sync"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

// InMemory is an append-only edge log.
type InMemory struct {
	mu    sync.RWMutex
	edges []*models.VouchEdge
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

// Append adds an edge. Edges are never updated or removed.
func (s *InMemory) Append(_ context.Context, edge *models.VouchEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.edges, func(e *models.VouchEdge) bool { return e.ID == edge.ID }) {
		return sentinel.ErrAlreadyUsed
	}
	c := *edge
	s.edges = append(s.edges, &c)
	return nil
}

// ListByVouched returns edges targeting profileID in creation order.
func (s *InMemory) ListByVouched(_ context.Context, profileID id.ProfileID) ([]*models.VouchEdge, error) {
	return s.filter(func(e *models.VouchEdge) bool { return e.VouchedID == profileID }), nil
}

// ListByVoucher returns edges created by profileID in creation order.
func (s *InMemory) ListByVoucher(_ context.Context, profileID id.ProfileID) ([]*models.VouchEdge, error) {
	return s.filter(func(e *models.VouchEdge) bool { return e.VoucherID == profileID }), nil
}

func (s *InMemory) filter(keep func(*models.VouchEdge) bool) []*models.VouchEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.VouchEdge
	for _, e := range s.edges {
		if keep(e) {
			c := *e
			out = append(out, &c)
		}
	}
	return out
}

// Snapshot returns a func that drops edges appended after the call.
func (s *InMemory) Snapshot() func() {
	s.mu.RLock()
	n := len(s.edges)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if n < len(s.edges) {
			s.edges = s.edges[:n]
		}
	}
}
