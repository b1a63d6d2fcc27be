package service

import (
	"github.com/google/uuid"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
)

func (s *TrustServiceSuite) TestReconcileRepairsVouchedRequestWithoutProfile() {
	r, err := models.NewJoinRequest(id.JoinRequestID(uuid.New()), "Xan", "xan@example.com", "", s.now)
	s.Require().NoError(err)
	r.ApplyApproval(s.steward.ID, s.steward.ID, s.now)
	r.ProfileID = nil
	s.Require().NoError(s.requests.CreateIfEmailAvailable(s.ctx, r))

	report, err := s.svc.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Repaired)
	s.Equal(0, report.Failed)

	p, err := s.profiles.FindByEmail(s.ctx, "xan@example.com")
	s.Require().NoError(err)
	s.True(p.IsVouched())
	s.Equal(s.steward.ID, *p.VouchedBy)
	stored, err := s.requests.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, *stored.ProfileID)
	edges, err := s.vouches.ListByVouched(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(edges, 1)
	s.Equal(models.NoteReconciled, edges[0].Note)

	again, err := s.svc.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, again.Repaired)
	s.Equal(0, again.Failed)
	s.assertVouchInvariant()
}

func (s *TrustServiceSuite) TestReconcileAppendsMissingEdge() {
	p := s.seedProfile("yui@example.com", models.RoleMember, false)
	s.Require().NoError(s.profiles.MarkVouched(s.ctx, p.ID, &s.steward.ID, s.now))

	report, err := s.svc.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Repaired)
	s.Len(report.Repairs, 1)

	edges, err := s.vouches.ListByVouched(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(edges, 1)
	s.Equal(s.steward.ID, edges[0].VoucherID)
	s.assertVouchInvariant()
}

func (s *TrustServiceSuite) TestReconcileLeavesConsistentGraphAlone() {
	s.allowNotifications()
	s.approveAll("zed@example.com")

	report, err := s.svc.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Scanned)
	s.Equal(0, report.Repaired)
	s.Empty(report.Repairs)
}
