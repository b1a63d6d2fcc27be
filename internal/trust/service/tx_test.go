package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	vouchstore "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/vouch"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

// failingVouches accepts reads but fails every append.
type failingVouches struct {
	*vouchstore.InMemory
}

func (failingVouches) Append(context.Context, *models.VouchEdge) error {
	return assertErr("disk full")
}

// flakyTx fails the first failures attempts with a transient error.
type flakyTx struct {
	StoreTx
	failures int
	attempts int
}

func (t *flakyTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	t.attempts++
	if t.attempts <= t.failures {
		return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeStorageUnavailable, "serialization failure")
	}
	return t.StoreTx.RunInTx(ctx, fn)
}

func (s *TrustServiceSuite) TestApproveIsAllOrNothing() {
	s.allowNotifications()
	r := s.submit("Amy", "amy@example.com")

	stores := Stores{Profiles: s.profiles, JoinRequests: s.requests, Vouches: failingVouches{s.vouches}}
	tx := NewInMemoryTx(stores, 0, s.profiles, s.requests, s.vouches)
	svc := New(tx, stores, WithNotifier(s.notifier))

	_, err := svc.Approve(s.ctx, r.ID, s.steward.ID)
	s.requireCode(err, dErrors.CodeInternal)

	_, err = s.profiles.FindByEmail(s.ctx, "amy@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound, "profile creation must be rolled back")
	stored, err := s.requests.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.JoinRequestPending, stored.Status)

	// The unchanged request can still be approved once storage recovers.
	_, err = s.svc.Approve(s.ctx, r.ID, s.steward.ID)
	s.NoError(err)
}

func (s *TrustServiceSuite) TestTransientFailureIsRetriedOnce() {
	s.allowNotifications()

	s.Run("one failure is absorbed", func() {
		tx := &flakyTx{StoreTx: NewInMemoryTx(s.stores, 0, s.profiles, s.requests, s.vouches), failures: 1}
		svc := New(tx, s.stores, WithNotifier(s.notifier))

		_, err := svc.SubmitJoinRequest(s.ctx, "Bo", "bo@example.com", "")
		s.Require().NoError(err)
		s.Equal(2, tx.attempts)
	})

	s.Run("second failure surfaces as storage unavailable", func() {
		tx := &flakyTx{StoreTx: NewInMemoryTx(s.stores, 0, s.profiles, s.requests, s.vouches), failures: 2}
		svc := New(tx, s.stores, WithNotifier(s.notifier))

		_, err := svc.SubmitJoinRequest(s.ctx, "Cy", "cy@example.com", "")
		s.requireCode(err, dErrors.CodeStorageUnavailable)
		s.Equal(2, tx.attempts)
	})

	s.Run("domain errors are not retried", func() {
		tx := &flakyTx{StoreTx: NewInMemoryTx(s.stores, 0, s.profiles, s.requests, s.vouches)}
		svc := New(tx, s.stores)

		_, err := svc.Approve(s.ctx, id.JoinRequestID(uuid.New()), s.steward.ID)
		s.requireCode(err, dErrors.CodeNotFound)
		s.Equal(1, tx.attempts)
	})
}

func (s *TrustServiceSuite) TestInMemoryTxHonoursCancellation() {
	tx := NewInMemoryTx(s.stores, time.Second, s.profiles)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	called := false
	err := tx.RunInTx(ctx, func(context.Context, Stores) error {
		called = true
		return nil
	})
	s.requireCode(err, dErrors.CodeTimeout)
	s.False(called)
}
