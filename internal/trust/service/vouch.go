package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/notify"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	emailutil "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/email"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

// DirectVouch is the result of a peer vouch.
type DirectVouch struct {
	Profile *models.Profile   `json:"profile"`
	Edge    *models.VouchEdge `json:"edge"`
	// ResolvedRequest is the pending join request for the same email that the
	// vouch closed, if any.
	ResolvedRequest *models.JoinRequest `json:"resolved_request,omitempty"`
}

// VouchDirectly lets a vouched member or steward vouch for targetEmail. The
// target profile is created as a placeholder when nobody registered with that
// email yet. The invite notification is sent after commit and never undoes
// the vouch.
func (s *Service) VouchDirectly(ctx context.Context, voucherID id.ProfileID, targetEmail, note string) (result *DirectVouch, err error) {
	ctx, end := s.startSpan(ctx, "vouch_directly",
		trace.WithAttributes(attribute.String("voucher_id", voucherID.String())))
	defer func() { end(err) }()

	targetEmail = emailutil.Normalize(targetEmail)
	now := requestcontext.Now(ctx)
	var voucherName string

	err = s.runInTx(ctx, "vouch_directly", func(ctx context.Context, stores Stores) error {
		voucher, err := stores.Profiles.FindByID(ctx, voucherID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeInsufficientCapability, "only vouched members or stewards can vouch")
			}
			return storageError(err, "failed to load voucher profile")
		}
		// Capability first: an unvouched caller learns nothing about the target.
		if err := voucher.CanVouchFor(nil); err != nil {
			return err
		}
		if !emailutil.Valid(targetEmail) {
			return dErrors.New(dErrors.CodeValidation, "a valid email is required")
		}
		if voucher.Email == targetEmail {
			return dErrors.New(dErrors.CodeInsufficientCapability, "cannot vouch for yourself")
		}

		target, _, err := findOrCreateByEmail(ctx, stores.Profiles, "", targetEmail, now)
		if err != nil {
			return err
		}
		if err := voucher.CanVouchFor(target); err != nil {
			return err
		}
		if err := target.CanBeVouched(); err != nil {
			return err
		}
		edge, err := vouch(ctx, stores, voucher.ID, target, note, now)
		if err != nil {
			return err
		}

		resolved, err := resolvePendingRequest(ctx, stores.JoinRequests, voucher.ID, target, now)
		if err != nil {
			return err
		}
		if err := s.emitAudit(ctx, audit.EventProfileVouched, voucher.ID.String(), target.ID.String(), "direct vouch"); err != nil {
			return err
		}
		voucherName = voucher.Name
		result = &DirectVouch{Profile: target, Edge: edge, ResolvedRequest: resolved}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "profile vouched directly",
		"voucher_id", voucherID.String(),
		"profile_id", result.Profile.ID.String(),
	)
	s.notify(ctx, notify.Notification{
		Kind:      notify.KindInvite,
		Recipient: result.Profile.Email,
		Payload: map[string]string{
			"voucher_name": voucherName,
			"note":         note,
		},
		RequestID: requestcontext.RequestID(ctx),
		CreatedAt: now,
	})
	s.profileUpdated(ctx, result.Profile, now)
	return result, nil
}

// resolvePendingRequest closes a pending join request for target's email as
// vouched so it is not processed a second time.
func resolvePendingRequest(ctx context.Context, requests JoinRequestStore, voucherID id.ProfileID, target *models.Profile, now time.Time) (*models.JoinRequest, error) {
	r, err := requests.FindByEmail(ctx, target.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, storageError(err, "failed to look up join request")
	}
	if !r.IsPending() {
		return nil, nil
	}
	r.ApplyApproval(voucherID, target.ID, now)
	if err := markReviewed(ctx, requests, r); err != nil {
		return nil, err
	}
	return r, nil
}

// vouch marks target vouched by voucherID and appends the edge. The profile
// update is a compare-and-swap on "not yet vouched".
func vouch(ctx context.Context, stores Stores, voucherID id.ProfileID, target *models.Profile, note string, now time.Time) (*models.VouchEdge, error) {
	edge, err := models.NewVouchEdge(id.VouchEdgeID(uuid.New()), voucherID, target.ID, note, now)
	if err != nil {
		return nil, err
	}
	by := voucherID
	if err := stores.Profiles.MarkVouched(ctx, target.ID, &by, now); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeAlreadyVouched, "profile is already vouched")
		}
		return nil, storageError(err, "failed to mark profile vouched")
	}
	if err := stores.Vouches.Append(ctx, edge); err != nil {
		return nil, storageError(err, "failed to record vouch")
	}
	target.ApplyVouch(&by, now)
	return edge, nil
}

// VouchTrail returns the profile with its incoming and outgoing edges.
func (s *Service) VouchTrail(ctx context.Context, profileID id.ProfileID) (*models.VouchTrail, error) {
	p, err := s.reads.Profiles.FindByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, storageError(err, "failed to load profile")
	}
	incoming, err := s.reads.Vouches.ListByVouched(ctx, profileID)
	if err != nil {
		return nil, storageError(err, "failed to list vouches")
	}
	outgoing, err := s.reads.Vouches.ListByVoucher(ctx, profileID)
	if err != nil {
		return nil, storageError(err, "failed to list vouches")
	}
	return &models.VouchTrail{Profile: p, Incoming: incoming, Outgoing: outgoing}, nil
}
