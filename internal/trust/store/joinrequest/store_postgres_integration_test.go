//go:build integration

package joinrequest_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/joinrequest"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/profile"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *joinrequest.PostgresStore
	steward  *models.Profile
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = joinrequest.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "vouch_edges", "join_requests", "profiles", "accounts"))

	steward, err := models.NewProfile(id.ProfileID(uuid.New()), nil, "Steward", "steward@example.com", time.Now().UTC())
	s.Require().NoError(err)
	steward.Role = models.RoleSteward
	s.Require().NoError(profile.NewPostgres(s.postgres.DB).CreateIfEmailAvailable(ctx, steward))
	s.steward = steward
}

func (s *PostgresStoreSuite) newRequest(email string) *models.JoinRequest {
	r, err := models.NewJoinRequest(id.JoinRequestID(uuid.New()), "Ana", email, "hello", time.Now().UTC())
	s.Require().NoError(err)
	return r
}

func (s *PostgresStoreSuite) TestDuplicateEmailCaseInsensitive() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, s.newRequest("ana@example.com")))
	s.ErrorIs(s.store.CreateIfEmailAvailable(ctx, s.newRequest("ANA@example.com")), sentinel.ErrAlreadyUsed)
}

// TestConcurrentReviewSingleWinner verifies the status = 'pending' guard lets
// exactly one reviewer through.
func (s *PostgresStoreSuite) TestConcurrentReviewSingleWinner() {
	ctx := context.Background()
	r := s.newRequest("bo@example.com")
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, r))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			review := *r
			if i%2 == 0 {
				review.ApplyRejection(s.steward.ID, time.Now())
			} else {
				review.ApplyApproval(s.steward.ID, s.steward.ID, time.Now())
			}
			err := s.store.MarkReviewed(ctx, &review)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrInvalidState) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

// TestForUpdateBlocksSecondReader verifies a locked request is not readable
// FOR UPDATE by another transaction until the first commits.
func (s *PostgresStoreSuite) TestForUpdateBlocksSecondReader() {
	ctx := context.Background()
	r := s.newRequest("cy@example.com")
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, r))

	tx1, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	_, err = joinrequest.NewPostgres(tx1).FindByIDForUpdate(ctx, r.ID)
	s.Require().NoError(err)

	done := make(chan *models.JoinRequest, 1)
	go func() {
		tx2, err := s.postgres.DB.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			done <- nil
			return
		}
		defer func() { _ = tx2.Rollback() }()
		found, _ := joinrequest.NewPostgres(tx2).FindByIDForUpdate(ctx, r.ID)
		done <- found
	}()

	select {
	case <-done:
		s.Fail("second FOR UPDATE read should block while the first transaction holds the lock")
	case <-time.After(200 * time.Millisecond):
	}

	review := *r
	review.ApplyRejection(s.steward.ID, time.Now())
	s.Require().NoError(joinrequest.NewPostgres(tx1).MarkReviewed(ctx, &review))
	s.Require().NoError(tx1.Commit())

	found := <-done
	s.Require().NotNil(found)
	s.Equal(models.JoinRequestRejected, found.Status)
}
