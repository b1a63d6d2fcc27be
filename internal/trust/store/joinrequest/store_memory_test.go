package joinrequest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

type JoinRequestStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestJoinRequestStoreSuite(t *testing.T) {
	suite.Run(t, new(JoinRequestStoreSuite))
}

func (s *JoinRequestStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *JoinRequestStoreSuite) newRequest(email string, offset time.Duration) *models.JoinRequest {
	r, err := models.NewJoinRequest(id.JoinRequestID(uuid.New()), "Ana", email, "", s.now.Add(offset))
	s.Require().NoError(err)
	return r
}

func (s *JoinRequestStoreSuite) TestDuplicateEmailRejected() {
	s.Require().NoError(s.store.CreateIfEmailAvailable(s.ctx, s.newRequest("ana@example.com", 0)))
	err := s.store.CreateIfEmailAvailable(s.ctx, s.newRequest("ana@example.com", time.Minute))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *JoinRequestStoreSuite) TestListByStatusOrdersOldestFirst() {
	later := s.newRequest("b@example.com", time.Hour)
	earlier := s.newRequest("a@example.com", 0)
	s.Require().NoError(s.store.CreateIfEmailAvailable(s.ctx, later))
	s.Require().NoError(s.store.CreateIfEmailAvailable(s.ctx, earlier))

	pending, err := s.store.ListByStatus(s.ctx, models.JoinRequestPending)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(earlier.ID, pending[0].ID)
	s.Equal(later.ID, pending[1].ID)
}

func (s *JoinRequestStoreSuite) TestMarkReviewedOnlyOnce() {
	r := s.newRequest("ana@example.com", 0)
	s.Require().NoError(s.store.CreateIfEmailAvailable(s.ctx, r))

	steward := id.ProfileID(uuid.New())
	approved := *r
	approved.ApplyApproval(steward, id.ProfileID(uuid.New()), s.now)
	s.Require().NoError(s.store.MarkReviewed(s.ctx, &approved))

	rejected := *r
	rejected.ApplyRejection(steward, s.now)
	s.ErrorIs(s.store.MarkReviewed(s.ctx, &rejected), sentinel.ErrInvalidState)

	found, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.JoinRequestVouched, found.Status)
	s.Equal(steward, *found.ReviewedBy)
}

func (s *JoinRequestStoreSuite) TestLinkProfile() {
	r := s.newRequest("ana@example.com", 0)
	s.Require().NoError(s.store.CreateIfEmailAvailable(s.ctx, r))
	profileID := id.ProfileID(uuid.New())

	s.Require().NoError(s.store.LinkProfile(s.ctx, r.ID, profileID))
	s.NoError(s.store.LinkProfile(s.ctx, r.ID, profileID))
	s.ErrorIs(s.store.LinkProfile(s.ctx, r.ID, id.ProfileID(uuid.New())), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.LinkProfile(s.ctx, id.JoinRequestID(uuid.New()), profileID), sentinel.ErrNotFound)
}

func (s *JoinRequestStoreSuite) TestSnapshotRestore() {
	restore := s.store.Snapshot()
	s.Require().NoError(s.store.CreateIfEmailAvailable(s.ctx, s.newRequest("ana@example.com", 0)))
	restore()

	_, err := s.store.FindByEmail(s.ctx, "ana@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
