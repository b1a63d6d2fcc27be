package models

import (
	"time"

	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// Role is a profile's moderation role.
type Role string

const (
	RoleMember  Role = "member"
	RoleSteward Role = "steward"
)

func (r Role) IsValid() bool {
	return r == RoleMember || r == RoleSteward
}

// Profile is a principal's community membership record.
//
// Invariants:
//   - Email is normalized and unique across profiles
//   - VouchedAt present is the only predicate for vouched capability
//   - VouchedBy present implies VouchedAt present
//   - VouchedAt present with VouchedBy absent means system-vouched (bulk provisioned)
//   - Vouched fields are written once; a vouched profile is never re-vouched
//   - PrincipalID, once bound, never changes
//
// A profile created before its owner registers (join request approval, direct
// vouch) has no PrincipalID. The owner claims it by email on first sign-in.
type Profile struct {
	ID          id.ProfileID    `json:"id"`
	PrincipalID *id.PrincipalID `json:"principal_id,omitempty"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	VouchedAt   *time.Time      `json:"vouched_at,omitempty"`
	VouchedBy   *id.ProfileID   `json:"vouched_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewProfile creates an unvouched member profile.
func NewProfile(profileID id.ProfileID, principalID *id.PrincipalID, name, email string, now time.Time) (*Profile, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "profile email cannot be empty")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "profile name cannot be empty")
	}
	return &Profile{
		ID:          profileID,
		PrincipalID: principalID,
		Name:        name,
		Email:       email,
		Role:        RoleMember,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (p *Profile) IsSteward() bool {
	return p.Role == RoleSteward
}

func (p *Profile) IsVouched() bool {
	return p.VouchedAt != nil
}

// HasIdentity reports whether the profile is bound to a principal.
func (p *Profile) HasIdentity() bool {
	return p.PrincipalID != nil
}

// IsSystemVouched reports a vouch with no attributable voucher.
func (p *Profile) IsSystemVouched() bool {
	return p.VouchedAt != nil && p.VouchedBy == nil
}

// HasVouchedCapability is true for vouched profiles and stewards. Stewards are
// treated as vouched for every capability check.
func (p *Profile) HasVouchedCapability() bool {
	return p.IsVouched() || p.IsSteward()
}

// CanVouchFor checks that p may vouch for target. Only vouched profiles or
// stewards may vouch, and never for themselves.
func (p *Profile) CanVouchFor(target *Profile) error {
	if !p.HasVouchedCapability() {
		return dErrors.New(dErrors.CodeInsufficientCapability, "only vouched members or stewards can vouch")
	}
	if target != nil && target.ID == p.ID {
		return dErrors.New(dErrors.CodeInsufficientCapability, "cannot vouch for yourself")
	}
	return nil
}

// CanBeVouched checks the target side of a vouch.
func (p *Profile) CanBeVouched() error {
	if p.IsVouched() {
		return dErrors.New(dErrors.CodeAlreadyVouched, "profile is already vouched")
	}
	return nil
}

// ApplyVouch sets the vouched fields. voucher nil means system-vouched.
// Call CanBeVouched first.
func (p *Profile) ApplyVouch(voucher *id.ProfileID, now time.Time) {
	at := now
	p.VouchedAt = &at
	p.VouchedBy = voucher
	p.UpdatedAt = now
}

// CanClaim checks that principalID may bind this profile.
func (p *Profile) CanClaim(principalID id.PrincipalID) error {
	if p.PrincipalID != nil && *p.PrincipalID != principalID {
		return dErrors.New(dErrors.CodeConflict, "profile email belongs to another account")
	}
	return nil
}

// ApplyClaim binds the profile to principalID.
func (p *Profile) ApplyClaim(principalID id.PrincipalID, now time.Time) {
	pid := principalID
	p.PrincipalID = &pid
	p.UpdatedAt = now
}
