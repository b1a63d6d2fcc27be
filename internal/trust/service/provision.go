package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	identitymodels "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/notify"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

// BulkProvision creates identity accounts for vouched join requests whose
// email has no profile bound to an identity yet, and makes sure each of those
// profiles is vouched. Items fail independently; the result lists every item
// and a summary. Re-running is safe: finished items report already_exists,
// unfinished ones resume, and every account still awaiting activation with
// no usable token is sent a new one.
func (s *Service) BulkProvision(ctx context.Context, stewardID id.ProfileID) (result *models.ProvisionResult, err error) {
	ctx, end := s.startSpan(ctx, "bulk_provision")
	defer func() { end(err) }()

	if s.accounts == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "account provisioning is not configured")
	}
	if _, err := loadSteward(ctx, s.reads.Profiles, stewardID); err != nil {
		return nil, err
	}
	requests, err := s.reads.JoinRequests.ListByStatus(ctx, models.JoinRequestVouched)
	if err != nil {
		return nil, storageError(err, "failed to list vouched join requests")
	}

	items := make([]models.ProvisionItem, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.provisionConcurrency)
	for i, r := range requests {
		g.Go(func() error {
			items[i] = s.provisionOne(gctx, stewardID, r)
			return nil
		})
	}
	_ = g.Wait()

	result = &models.ProvisionResult{Items: items}
	result.Tally()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("provision.created", result.Summary.Created),
		attribute.Int("provision.already_exists", result.Summary.AlreadyExists),
		attribute.Int("provision.errors", result.Summary.Errors),
	)
	s.logger.InfoContext(ctx, "bulk provisioning finished",
		"created", result.Summary.Created,
		"already_exists", result.Summary.AlreadyExists,
		"errors", result.Summary.Errors,
	)
	return result, nil
}

func (s *Service) provisionOne(ctx context.Context, stewardID id.ProfileID, r *models.JoinRequest) (item models.ProvisionItem) {
	item = models.ProvisionItem{JoinRequestID: r.ID.String(), Email: r.Email}
	defer func() {
		if s.metrics != nil {
			s.metrics.IncrementProvisionItem(string(item.Outcome))
		}
	}()
	fail := func(err error) models.ProvisionItem {
		item.Outcome = models.ProvisionError
		item.Error = publicMessage(err)
		s.logger.WarnContext(ctx, "provisioning failed",
			"join_request_id", r.ID.String(),
			"error", err,
		)
		if auditErr := s.emitAudit(ctx, audit.EventProvisionFailed, stewardID.String(), r.ID.String(), item.Error); auditErr != nil {
			s.logger.ErrorContext(ctx, "failed to audit provisioning failure", "error", auditErr)
		}
		return item
	}

	// No existing profile/identity pair may be provisioned again.
	if p, err := s.reads.Profiles.FindByEmail(ctx, r.Email); err == nil && p.HasIdentity() && p.IsVouched() && r.ProfileID != nil && *r.ProfileID == p.ID {
		item.Outcome = models.ProvisionAlreadyExists
		item.ProfileID = p.ID.String()
		account, err := s.accounts.RenewExpiredActivation(ctx, r.Email)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return item
			}
			return fail(err)
		}
		s.sendActivation(ctx, r, account)
		return item
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fail(storageError(err, "failed to look up profile"))
	}

	account, err := s.accounts.CreateAccount(ctx, r.Email)
	if err != nil {
		return fail(err)
	}

	now := requestcontext.Now(ctx)
	var profile *models.Profile
	var changed bool
	err = s.runInTx(ctx, "provision", func(ctx context.Context, stores Stores) error {
		profile, changed = nil, account.Created
		p, err := bindProvisionedProfile(ctx, stores.Profiles, r, account, now, &changed)
		if err != nil {
			return err
		}
		if !p.IsVouched() {
			voucher := resolveVoucher(ctx, stores.Profiles, r.VoucherID, p.ID)
			if voucher != nil {
				if _, err := vouch(ctx, stores, *voucher, p, models.NoteBulkProvision, now); err != nil {
					return err
				}
			} else {
				if err := stores.Profiles.MarkVouched(ctx, p.ID, nil, now); err != nil {
					return storageError(err, "failed to mark profile vouched")
				}
				p.ApplyVouch(nil, now)
			}
			changed = true
		}
		if r.ProfileID == nil || *r.ProfileID != p.ID {
			if err := stores.JoinRequests.LinkProfile(ctx, r.ID, p.ID); err != nil {
				if errors.Is(err, sentinel.ErrInvalidState) {
					return dErrors.New(dErrors.CodeConflict, "join request is linked to a different profile")
				}
				return storageError(err, "failed to link join request")
			}
		}
		if changed {
			if err := s.emitAudit(ctx, audit.EventAccountProvisioned, stewardID.String(), p.ID.String(), r.ID.String()); err != nil {
				return err
			}
		}
		profile = p
		return nil
	})
	if err != nil {
		return fail(err)
	}

	item.ProfileID = profile.ID.String()
	item.Outcome = models.ProvisionAlreadyExists
	if changed {
		item.Outcome = models.ProvisionCreated
	}
	// A token issued by CreateAccount replaced any earlier one, so it is sent
	// even when nothing else changed.
	s.sendActivation(ctx, r, account)
	return item
}

// sendActivation mails the token for a provisioned account, if one was issued.
func (s *Service) sendActivation(ctx context.Context, r *models.JoinRequest, account *identitymodels.ProvisionedAccount) {
	if account == nil || account.ActivationToken == "" {
		return
	}
	s.notify(ctx, notify.Notification{
		Kind:      notify.KindAccountProvisioned,
		Recipient: r.Email,
		Payload: map[string]string{
			"name":             r.Name,
			"activation_token": account.ActivationToken,
		},
		RequestID: requestcontext.RequestID(ctx),
		CreatedAt: requestcontext.Now(ctx),
	})
}

// publicMessage is the part of err that may be shown to a steward. Storage
// and internal failures are reduced to their code.
func publicMessage(err error) string {
	de, ok := dErrors.As(err)
	if !ok {
		return string(dErrors.CodeInternal)
	}
	switch de.Code {
	case dErrors.CodeInternal, dErrors.CodeStorageUnavailable, dErrors.CodeTimeout:
		return string(de.Code)
	}
	return de.Message
}

// bindProvisionedProfile returns the profile for r's email bound to the
// provisioned account, creating or claiming it as needed.
func bindProvisionedProfile(ctx context.Context, profiles ProfileStore, r *models.JoinRequest, account *identitymodels.ProvisionedAccount, now time.Time, changed *bool) (*models.Profile, error) {
	principalID := account.PrincipalID
	p, err := profiles.FindByEmail(ctx, r.Email)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		p, err = models.NewProfile(id.ProfileID(principalID), &principalID, r.Name, r.Email, now)
		if err != nil {
			return nil, err
		}
		if err := createProfile(ctx, profiles, p); err != nil {
			return nil, err
		}
		*changed = true
		return p, nil
	case err != nil:
		return nil, storageError(err, "failed to look up profile")
	}

	if err := p.CanClaim(principalID); err != nil {
		return nil, err
	}
	if !p.HasIdentity() {
		if err := profiles.BindPrincipal(ctx, p.ID, principalID, now); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, dErrors.New(dErrors.CodeConflict, "account is bound to another profile")
			}
			return nil, storageError(err, "failed to bind profile")
		}
		p.ApplyClaim(principalID, now)
		*changed = true
	}
	return p, nil
}

// resolveVoucher returns voucherID when it still names a profile allowed to
// vouch for target, else nil (system vouch).
func resolveVoucher(ctx context.Context, profiles ProfileStore, voucherID *id.ProfileID, target id.ProfileID) *id.ProfileID {
	if voucherID == nil || *voucherID == target {
		return nil
	}
	voucher, err := profiles.FindByID(ctx, *voucherID)
	if err != nil || !voucher.HasVouchedCapability() {
		return nil
	}
	resolved := voucher.ID
	return &resolved
}
