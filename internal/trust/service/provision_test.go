package service

import (
	"github.com/google/uuid"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/notify"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
)

// approveAll submits and approves one request per email.
func (s *TrustServiceSuite) approveAll(emails ...string) []*models.JoinRequest {
	out := make([]*models.JoinRequest, 0, len(emails))
	for _, e := range emails {
		r := s.submit("Applicant", e)
		_, err := s.svc.Approve(s.ctx, r.ID, s.steward.ID)
		s.Require().NoError(err)
		out = append(out, r)
	}
	return out
}

func (s *TrustServiceSuite) TestBulkProvisionIsIdempotent() {
	s.allowNotifications()
	s.approveAll("a1@example.com", "a2@example.com", "a3@example.com")

	first, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{Created: 3}, first.Summary)
	s.NoError(first.Err())
	for _, item := range first.Items {
		s.Equal(models.ProvisionCreated, item.Outcome)
		p, err := s.profiles.FindByEmail(s.ctx, item.Email)
		s.Require().NoError(err)
		s.True(p.HasIdentity())
		s.True(p.IsVouched())
		s.Equal(s.steward.ID, *p.VouchedBy, "original voucher is kept")
		s.Equal(p.ID.String(), item.ProfileID)
	}

	callsAfterFirst := s.accounts.calls
	second, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{AlreadyExists: 3}, second.Summary)
	s.Equal(callsAfterFirst, s.accounts.calls, "no account is created twice")
	s.assertVouchInvariant()
}

func (s *TrustServiceSuite) TestBulkProvisionIsolatesFailures() {
	s.allowNotifications()
	s.approveAll("b1@example.com", "b2@example.com", "b3@example.com")
	s.accounts.failures["b2@example.com"] = dErrors.New(dErrors.CodeConflict, "account email is taken")

	result, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{Created: 2, Errors: 1}, result.Summary)
	s.True(dErrors.HasCode(result.Err(), dErrors.CodePartialBatchFailure))
	for _, item := range result.Items {
		if item.Email == "b2@example.com" {
			s.Equal(models.ProvisionError, item.Outcome)
			s.Equal("account email is taken", item.Error)
		}
	}

	// Retry after the identity store recovers only creates the failed item.
	delete(s.accounts.failures, "b2@example.com")
	retry, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{Created: 1, AlreadyExists: 2}, retry.Summary)
}

func (s *TrustServiceSuite) TestBulkProvisionHidesStorageDetails() {
	s.allowNotifications()
	s.approveAll("h1@example.com", "h2@example.com")
	s.accounts.failures["h1@example.com"] = dErrors.Wrap(
		assertErr("dial tcp 10.0.4.17:5432: connection refused"), dErrors.CodeStorageUnavailable, "failed to load account")
	s.accounts.failures["h2@example.com"] = assertErr("pq: relation \"accounts\" does not exist")

	result, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{Errors: 2}, result.Summary)
	byEmail := map[string]string{}
	for _, item := range result.Items {
		byEmail[item.Email] = item.Error
	}
	s.Equal(string(dErrors.CodeStorageUnavailable), byEmail["h1@example.com"])
	s.Equal(string(dErrors.CodeInternal), byEmail["h2@example.com"])

	failures, err := s.audits.ListByAction(s.ctx, audit.EventProvisionFailed)
	s.Require().NoError(err)
	s.Require().Len(failures, 2)
	for _, e := range failures {
		s.NotContains(e.Reason, "10.0.4.17")
		s.NotContains(e.Reason, "relation")
	}
}

func (s *TrustServiceSuite) TestBulkProvisionResendsTokenAfterFailedRun() {
	provisioned := s.sentNotifications(notify.KindAccountProvisioned)
	s.approveAll("r1@example.com")

	// The account is created, then the profile transaction fails twice.
	broken := &flakyTx{StoreTx: NewInMemoryTx(s.stores, 0, s.profiles, s.requests, s.vouches), failures: 2}
	svc := New(broken, s.stores, WithNotifier(s.notifier), WithAccounts(s.accounts))
	first, err := svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{Errors: 1}, first.Summary)
	s.Empty(provisioned(), "no token is mailed for a failed item")
	firstToken := s.accounts.token("r1@example.com")
	s.NotEmpty(firstToken)

	retry, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{Created: 1}, retry.Summary)
	sent := provisioned()
	s.Require().Len(sent, 1)
	s.Equal("r1@example.com", sent[0].Recipient)
	s.Equal(s.accounts.token("r1@example.com"), sent[0].Payload["activation_token"])
	s.NotEqual(firstToken, sent[0].Payload["activation_token"])

	// A finished item with a live token is left alone.
	again, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{AlreadyExists: 1}, again.Summary)
	s.Len(provisioned(), 1)
}

func (s *TrustServiceSuite) TestBulkProvisionRenewsExpiredTokens() {
	provisioned := s.sentNotifications(notify.KindAccountProvisioned)
	s.approveAll("x1@example.com", "x2@example.com")
	_, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Len(provisioned(), 2)

	s.accounts.expire("x1@example.com")
	s.accounts.expire("x2@example.com")
	s.accounts.activate("x2@example.com")

	result, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{AlreadyExists: 2}, result.Summary)
	sent := provisioned()
	s.Require().Len(sent, 3)
	s.Equal("x1@example.com", sent[2].Recipient)
	s.Equal(s.accounts.token("x1@example.com"), sent[2].Payload["activation_token"])
}

func (s *TrustServiceSuite) TestBulkProvisionFallsBackToSystemVouch() {
	s.allowNotifications()
	// A vouched request from legacy data: no profile, voucher no longer resolvable.
	ghost := id.ProfileID(uuid.New())
	r, err := models.NewJoinRequest(id.JoinRequestID(uuid.New()), "Vic", "vic@example.com", "", s.now)
	s.Require().NoError(err)
	r.ApplyApproval(ghost, ghost, s.now)
	r.ProfileID = nil
	s.Require().NoError(s.requests.CreateIfEmailAvailable(s.ctx, r))

	result, err := s.svc.BulkProvision(s.ctx, s.steward.ID)
	s.Require().NoError(err)
	s.Equal(models.ProvisionSummary{Created: 1}, result.Summary)

	p, err := s.profiles.FindByEmail(s.ctx, "vic@example.com")
	s.Require().NoError(err)
	s.True(p.IsSystemVouched())
	s.assertVouchInvariant()
}

func (s *TrustServiceSuite) TestBulkProvisionRequiresSteward() {
	member := s.seedProfile("wes@example.com", models.RoleMember, true)
	_, err := s.svc.BulkProvision(s.ctx, member.ID)
	s.requireCode(err, dErrors.CodeInsufficientCapability)
}
