package service

import (
	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/notify"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

func (s *TrustServiceSuite) TestVouchDirectlyRequiresCapability() {
	unvouched := s.seedProfile("newbie@example.com", models.RoleMember, false)
	existing := s.seedProfile("target@example.com", models.RoleMember, false)

	for _, target := range []string{existing.Email, "stranger@example.com", "newbie@example.com", "bad-email"} {
		_, err := s.svc.VouchDirectly(s.ctx, unvouched.ID, target, "")
		s.requireCode(err, dErrors.CodeInsufficientCapability)
	}

	_, err := s.svc.VouchDirectly(s.ctx, id.ProfileID(uuid.New()), existing.Email, "")
	s.requireCode(err, dErrors.CodeInsufficientCapability)

	_, err = s.profiles.FindByEmail(s.ctx, "stranger@example.com")
	s.Error(err, "a denied vouch must not create a placeholder")
	edges, err := s.vouches.ListByVoucher(s.ctx, unvouched.ID)
	s.Require().NoError(err)
	s.Empty(edges)
}

func (s *TrustServiceSuite) TestVouchDirectly() {
	member := s.seedProfile("mia@example.com", models.RoleMember, true)

	s.Run("creates a placeholder profile and an edge", func() {
		s.notifier.EXPECT().Notify(gomock.Any(), notification(notify.KindInvite, "nia@example.com")).Return(nil)

		result, err := s.svc.VouchDirectly(s.ctx, member.ID, "Nia@Example.com", "my neighbor")
		s.Require().NoError(err)
		s.Equal("nia@example.com", result.Profile.Email)
		s.Equal("Nia", result.Profile.Name)
		s.False(result.Profile.HasIdentity())
		s.Equal(member.ID, *result.Profile.VouchedBy)
		s.Equal("my neighbor", result.Edge.Note)
		s.Nil(result.ResolvedRequest)
	})

	s.Run("target already vouched", func() {
		_, err := s.svc.VouchDirectly(s.ctx, s.steward.ID, "nia@example.com", "")
		s.requireCode(err, dErrors.CodeAlreadyVouched)

		nia, err := s.profiles.FindByEmail(s.ctx, "nia@example.com")
		s.Require().NoError(err)
		edges, err := s.vouches.ListByVouched(s.ctx, nia.ID)
		s.Require().NoError(err)
		s.Len(edges, 1)
	})

	s.Run("self vouch is rejected", func() {
		_, err := s.svc.VouchDirectly(s.ctx, member.ID, "mia@example.com", "")
		s.requireCode(err, dErrors.CodeInsufficientCapability)
	})

	s.Run("steward without vouch may vouch", func() {
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)
		_, err := s.svc.VouchDirectly(s.ctx, s.steward.ID, "oli@example.com", "")
		s.Require().NoError(err)
	})

	s.assertVouchInvariant()
}

func (s *TrustServiceSuite) TestVouchDirectlySurvivesNotificationFailure() {
	member := s.seedProfile("pat@example.com", models.RoleMember, true)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(assertErr("smtp timeout"))

	result, err := s.svc.VouchDirectly(s.ctx, member.ID, "quin@example.com", "")
	s.Require().NoError(err)

	stored, err := s.profiles.FindByID(s.ctx, result.Profile.ID)
	s.Require().NoError(err)
	s.True(stored.IsVouched())
	edges, err := s.vouches.ListByVouched(s.ctx, stored.ID)
	s.Require().NoError(err)
	s.Len(edges, 1)
}

func (s *TrustServiceSuite) TestVouchDirectlyResolvesPendingRequest() {
	s.allowNotifications()
	member := s.seedProfile("ray@example.com", models.RoleMember, true)
	r := s.submit("Sol", "sol@example.com")

	result, err := s.svc.VouchDirectly(s.ctx, member.ID, "sol@example.com", "")
	s.Require().NoError(err)
	s.Require().NotNil(result.ResolvedRequest)
	s.Equal(r.ID, result.ResolvedRequest.ID)

	stored, err := s.requests.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.JoinRequestVouched, stored.Status)
	s.Equal(result.Profile.ID, *stored.ProfileID)

	_, err = s.svc.Approve(s.ctx, r.ID, s.steward.ID)
	s.requireCode(err, dErrors.CodeAlreadyReviewed)
}

func (s *TrustServiceSuite) TestVouchTrail() {
	s.allowNotifications()
	member := s.seedProfile("tia@example.com", models.RoleMember, true)
	result, err := s.svc.VouchDirectly(s.ctx, member.ID, "uma@example.com", "")
	s.Require().NoError(err)

	trail, err := s.svc.VouchTrail(s.ctx, member.ID)
	s.Require().NoError(err)
	s.Empty(trail.Incoming)
	s.Require().Len(trail.Outgoing, 1)
	s.Equal(result.Profile.ID, trail.Outgoing[0].VouchedID)

	trail, err = s.svc.VouchTrail(s.ctx, result.Profile.ID)
	s.Require().NoError(err)
	s.Len(trail.Incoming, 1)

	_, err = s.svc.VouchTrail(s.ctx, id.ProfileID(uuid.New()))
	s.requireCode(err, dErrors.CodeNotFound)
}
