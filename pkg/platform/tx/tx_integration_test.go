//go:build integration

package tx_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	txcontext "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/tx"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/testutil/containers"
)

type RunSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
}

func TestRunSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RunSuite))
}

func (s *RunSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *RunSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "vouch_edges", "join_requests", "profiles", "accounts")
	s.Require().NoError(err)
}

func (s *RunSuite) insertAccount(ctx context.Context, email string) error {
	db := txcontext.Executor(ctx, s.postgres.DB)
	_, err := db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, status, created_at) VALUES ($1, $2, 'pending_activation', $3)`,
		uuid.New(), email, time.Now())
	return err
}

func (s *RunSuite) countAccounts(email string) int {
	var n int
	err := s.postgres.DB.QueryRowContext(context.Background(), `SELECT count(*) FROM accounts WHERE email = $1`, email).Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *RunSuite) TestCommitsOnSuccess() {
	err := txcontext.Run(context.Background(), s.postgres.DB, func(ctx context.Context, _ *sql.Tx) error {
		return s.insertAccount(ctx, "kept@example.com")
	})
	s.Require().NoError(err)
	s.Equal(1, s.countAccounts("kept@example.com"))
}

func (s *RunSuite) TestRollsBackOnError() {
	failure := errors.New("later step failed")
	err := txcontext.Run(context.Background(), s.postgres.DB, func(ctx context.Context, _ *sql.Tx) error {
		if err := s.insertAccount(ctx, "dropped@example.com"); err != nil {
			return err
		}
		return failure
	})
	s.ErrorIs(err, failure)
	s.Equal(0, s.countAccounts("dropped@example.com"))
}
