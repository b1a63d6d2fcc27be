package models

import (
	"time"

	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// JoinRequestStatus is the review state of a join request.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestVouched  JoinRequestStatus = "vouched"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

func (s JoinRequestStatus) IsValid() bool {
	switch s {
	case JoinRequestPending, JoinRequestVouched, JoinRequestRejected:
		return true
	}
	return false
}

// IsTerminal is true for vouched and rejected.
func (s JoinRequestStatus) IsTerminal() bool {
	return s == JoinRequestVouched || s == JoinRequestRejected
}

// CanTransitionTo allows only pending -> vouched and pending -> rejected.
func (s JoinRequestStatus) CanTransitionTo(next JoinRequestStatus) bool {
	return s == JoinRequestPending && next.IsTerminal()
}

const (
	maxNameLength  = 128
	maxIntroLength = 2000
)

// JoinRequest is one application to join the community.
//
// Invariants:
//   - Status transitions are one-way: pending -> vouched | rejected
//   - ReviewedAt absent <=> Status = pending
//   - Email is normalized and unique across join requests
//   - ProfileID, once set, references the profile the request was matched to
//
// Requests are never deleted; the ledger doubles as an audit log.
type JoinRequest struct {
	ID          id.JoinRequestID  `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Intro       string            `json:"intro"`
	Status      JoinRequestStatus `json:"status"`
	RequestedAt time.Time         `json:"requested_at"`
	ReviewedBy  *id.ProfileID     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time        `json:"reviewed_at,omitempty"`
	VoucherID   *id.ProfileID     `json:"voucher_id,omitempty"`
	ProfileID   *id.ProfileID     `json:"profile_id,omitempty"`
}

// NewJoinRequest creates a pending request. Email must already be normalized.
func NewJoinRequest(requestID id.JoinRequestID, name, email, intro string, now time.Time) (*JoinRequest, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "name must be 128 characters or less")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(intro) > maxIntroLength {
		return nil, dErrors.New(dErrors.CodeValidation, "intro must be 2000 characters or less")
	}
	return &JoinRequest{
		ID:          requestID,
		Name:        name,
		Email:       email,
		Intro:       intro,
		Status:      JoinRequestPending,
		RequestedAt: now,
	}, nil
}

func (r *JoinRequest) IsPending() bool {
	return r.Status == JoinRequestPending
}

// CanReview checks that the request has not been reviewed yet.
// Use with ApplyApproval or ApplyRejection inside a transaction.
func (r *JoinRequest) CanReview() error {
	if !r.Status.CanTransitionTo(JoinRequestVouched) {
		return dErrors.New(dErrors.CodeAlreadyReviewed, "join request has already been reviewed")
	}
	return nil
}

// ApplyApproval marks the request vouched by reviewer and links the matched profile.
func (r *JoinRequest) ApplyApproval(reviewer, profile id.ProfileID, now time.Time) {
	r.applyReview(JoinRequestVouched, reviewer, now)
	voucher := reviewer
	r.VoucherID = &voucher
	matched := profile
	r.ProfileID = &matched
}

// ApplyRejection marks the request rejected by reviewer.
func (r *JoinRequest) ApplyRejection(reviewer id.ProfileID, now time.Time) {
	r.applyReview(JoinRequestRejected, reviewer, now)
}

func (r *JoinRequest) applyReview(status JoinRequestStatus, reviewer id.ProfileID, now time.Time) {
	at := now
	by := reviewer
	r.Status = status
	r.ReviewedAt = &at
	r.ReviewedBy = &by
}
