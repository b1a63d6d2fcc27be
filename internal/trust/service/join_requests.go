package service

import (
	"context"
	"errors"

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

// Approval is the result of approving a join request. Edge is nil when the
// matched profile was already vouched through another path.
type Approval struct {
	Request *models.JoinRequest `json:"request"`
	Profile *models.Profile     `json:"profile"`
	Edge    *models.VouchEdge   `json:"edge,omitempty"`
}

// SubmitJoinRequest records an application to join. One request per email:
// a second submission returns DuplicateRequest, an email that already belongs
// to a vouched profile returns AlreadyVouched.
func (s *Service) SubmitJoinRequest(ctx context.Context, name, email, intro string) (request *models.JoinRequest, err error) {
	ctx, end := s.startSpan(ctx, "submit_join_request")
	defer func() { end(err) }()

	email = emailutil.Normalize(email)
	if !emailutil.Valid(email) {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	request, err = models.NewJoinRequest(id.JoinRequestID(uuid.New()), name, email, intro, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.runInTx(ctx, "submit_join_request", func(ctx context.Context, stores Stores) error {
		if p, err := stores.Profiles.FindByEmail(ctx, email); err == nil {
			if p.IsVouched() {
				return dErrors.New(dErrors.CodeAlreadyVouched, "this email already belongs to a vouched member")
			}
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return storageError(err, "failed to look up profile")
		}

		if _, err := stores.JoinRequests.FindByEmail(ctx, email); err == nil {
			return dErrors.New(dErrors.CodeDuplicateRequest, "a join request for this email already exists")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return storageError(err, "failed to look up join request")
		}

		if err := stores.JoinRequests.CreateIfEmailAvailable(ctx, request); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeDuplicateRequest, "a join request for this email already exists")
			}
			return storageError(err, "failed to create join request")
		}
		return s.emitAudit(ctx, audit.EventJoinRequestSubmitted, "", request.ID.String(), "")
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Notification{
		Kind:      notify.KindJoinRequestSubmitted,
		Recipient: notify.RecipientStewards,
		Payload: map[string]string{
			"join_request_id": request.ID.String(),
			"name":            request.Name,
			"email":           request.Email,
			"intro":           request.Intro,
		},
		RequestID: requestcontext.RequestID(ctx),
		CreatedAt: request.RequestedAt,
	})
	return request, nil
}

// ListPending returns pending join requests, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*models.JoinRequest, error) {
	requests, err := s.reads.JoinRequests.ListByStatus(ctx, models.JoinRequestPending)
	if err != nil {
		return nil, storageError(err, "failed to list join requests")
	}
	return requests, nil
}

// Approve vouches for the applicant behind requestID. In one transaction it
// finds or creates the profile by email, marks it vouched by the steward,
// appends the approval edge and closes the request. A request that is no
// longer pending returns AlreadyReviewed.
func (s *Service) Approve(ctx context.Context, requestID id.JoinRequestID, stewardID id.ProfileID) (approval *Approval, err error) {
	ctx, end := s.startSpan(ctx, "approve",
		trace.WithAttributes(attribute.String("join_request_id", requestID.String())))
	defer func() { end(err) }()

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "approve", func(ctx context.Context, stores Stores) error {
		steward, err := loadSteward(ctx, stores.Profiles, stewardID)
		if err != nil {
			return err
		}
		request, err := loadForReview(ctx, stores.JoinRequests, requestID)
		if err != nil {
			return err
		}

		profile, _, err := findOrCreateByEmail(ctx, stores.Profiles, request.Name, request.Email, now)
		if err != nil {
			return err
		}
		if err := steward.CanVouchFor(profile); err != nil {
			return err
		}

		var edge *models.VouchEdge
		if !profile.IsVouched() {
			edge, err = vouch(ctx, stores, steward.ID, profile, models.NoteJoinRequestApproval, now)
			if err != nil {
				return err
			}
		}

		request.ApplyApproval(steward.ID, profile.ID, now)
		if err := markReviewed(ctx, stores.JoinRequests, request); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, audit.EventJoinRequestApproved, steward.ID.String(), request.ID.String(), ""); err != nil {
			return err
		}
		approval = &Approval{Request: request, Profile: profile, Edge: edge}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "join request approved",
		"join_request_id", requestID.String(),
		"profile_id", approval.Profile.ID.String(),
		"steward_id", stewardID.String(),
	)
	s.notify(ctx, notify.Notification{
		Kind:      notify.KindJoinRequestApproved,
		Recipient: approval.Request.Email,
		Payload: map[string]string{
			"join_request_id": approval.Request.ID.String(),
			"name":            approval.Request.Name,
		},
		RequestID: requestcontext.RequestID(ctx),
		CreatedAt: now,
	})
	s.profileUpdated(ctx, approval.Profile, now)
	return approval, nil
}

// Reject closes requestID without touching profiles or the vouch graph.
func (s *Service) Reject(ctx context.Context, requestID id.JoinRequestID, stewardID id.ProfileID) (request *models.JoinRequest, err error) {
	ctx, end := s.startSpan(ctx, "reject",
		trace.WithAttributes(attribute.String("join_request_id", requestID.String())))
	defer func() { end(err) }()

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "reject", func(ctx context.Context, stores Stores) error {
		steward, err := loadSteward(ctx, stores.Profiles, stewardID)
		if err != nil {
			return err
		}
		r, err := loadForReview(ctx, stores.JoinRequests, requestID)
		if err != nil {
			return err
		}
		r.ApplyRejection(steward.ID, now)
		if err := markReviewed(ctx, stores.JoinRequests, r); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, audit.EventJoinRequestRejected, steward.ID.String(), r.ID.String(), ""); err != nil {
			return err
		}
		request = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "join request rejected",
		"join_request_id", requestID.String(),
		"steward_id", stewardID.String(),
	)
	return request, nil
}

// loadForReview locks the request row and checks it is still pending.
func loadForReview(ctx context.Context, requests JoinRequestStore, requestID id.JoinRequestID) (*models.JoinRequest, error) {
	r, err := requests.FindByIDForUpdate(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "join request not found")
		}
		return nil, storageError(err, "failed to load join request")
	}
	if err := r.CanReview(); err != nil {
		return nil, err
	}
	return r, nil
}

// markReviewed writes the review with a compare-and-swap on pending status.
func markReviewed(ctx context.Context, requests JoinRequestStore, r *models.JoinRequest) error {
	if err := requests.MarkReviewed(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeAlreadyReviewed, "join request has already been reviewed")
		}
		return storageError(err, "failed to update join request")
	}
	return nil
}
