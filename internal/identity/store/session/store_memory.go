// Package session persists identity-store sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

// InMemory keeps sessions in process memory. Expired sessions are not
// evicted; callers check IsActive.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
}

func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[id.SessionID]*models.Session)}
}

func (s *InMemory) Create(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.sessions[sess.ID] = clone(sess)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return clone(sess), nil
	}
	return nil, sentinel.ErrNotFound
}

// EndIfActive ends the session unless it already ended, in which case it
// returns ErrInvalidState.
func (s *InMemory) EndIfActive(_ context.Context, sessionID id.SessionID, at time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if sess.Status != models.SessionStatusActive {
		return nil, sentinel.ErrInvalidState
	}
	sess.ApplyEnd(at)
	return clone(sess), nil
}

func clone(sess *models.Session) *models.Session {
	c := *sess
	if sess.EndedAt != nil {
		at := *sess.EndedAt
		c.EndedAt = &at
	}
	return &c
}
