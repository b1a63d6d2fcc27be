//go:build integration

package profile_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/profile"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *profile.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = profile.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "vouch_edges", "join_requests", "profiles", "accounts")
	s.Require().NoError(err)
}

func newTestProfile(email string) *models.Profile {
	now := time.Now().UTC().Truncate(time.Microsecond)
	p, _ := models.NewProfile(id.ProfileID(uuid.New()), nil, "Neighbor", email, now)
	return p
}

// TestConcurrentCreateSameEmail verifies exactly one profile wins an email.
func (s *PostgresStoreSuite) TestConcurrentCreateSameEmail() {
	ctx := context.Background()
	const goroutines = 30

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfEmailAvailable(ctx, newTestProfile("race@example.com"))
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

func (s *PostgresStoreSuite) TestEmailLookupIsCaseInsensitive() {
	ctx := context.Background()
	p := newTestProfile("ana@example.com")
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, p))

	found, err := s.store.FindByEmail(ctx, "ANA@example.com")
	s.Require().NoError(err)
	s.Equal(p.ID, found.ID)
}

// TestConcurrentMarkVouched verifies the vouched_at IS NULL guard admits one writer.
func (s *PostgresStoreSuite) TestConcurrentMarkVouched() {
	ctx := context.Background()
	p := newTestProfile("bo@example.com")
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, p))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.MarkVouched(ctx, p.ID, nil, time.Now())
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

	found, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.True(found.IsSystemVouched())
}

func (s *PostgresStoreSuite) TestMissingProfileIsNotFound() {
	ctx := context.Background()
	err := s.store.MarkVouched(ctx, id.ProfileID(uuid.New()), nil, time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByPrincipalID(ctx, id.PrincipalID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
