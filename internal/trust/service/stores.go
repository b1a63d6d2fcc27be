package service

import (
	"context"
	"time"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
)

// ProfileStore persists profiles. Implementations return sentinel errors:
// ErrNotFound for missing rows, ErrAlreadyUsed for a taken email or principal,
// ErrInvalidState when a compare-and-swap precondition no longer holds.
type ProfileStore interface {
	CreateIfEmailAvailable(ctx context.Context, p *models.Profile) error
	FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	FindByPrincipalID(ctx context.Context, principalID id.PrincipalID) (*models.Profile, error)
	MarkVouched(ctx context.Context, profileID id.ProfileID, vouchedBy *id.ProfileID, at time.Time) error
	BindPrincipal(ctx context.Context, profileID id.ProfileID, principalID id.PrincipalID, at time.Time) error
	SetRole(ctx context.Context, profileID id.ProfileID, role models.Role, at time.Time) error
	ListVouched(ctx context.Context) ([]*models.Profile, error)
}

// JoinRequestStore persists the join request ledger.
type JoinRequestStore interface {
	CreateIfEmailAvailable(ctx context.Context, r *models.JoinRequest) error
	FindByID(ctx context.Context, requestID id.JoinRequestID) (*models.JoinRequest, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, requestID id.JoinRequestID) (*models.JoinRequest, error)
	FindByEmail(ctx context.Context, email string) (*models.JoinRequest, error)
	ListByStatus(ctx context.Context, status models.JoinRequestStatus) ([]*models.JoinRequest, error)
	MarkReviewed(ctx context.Context, r *models.JoinRequest) error
	LinkProfile(ctx context.Context, requestID id.JoinRequestID, profileID id.ProfileID) error
}

// VouchStore is the append-only vouch edge log.
type VouchStore interface {
	Append(ctx context.Context, edge *models.VouchEdge) error
	ListByVouched(ctx context.Context, profileID id.ProfileID) ([]*models.VouchEdge, error)
	ListByVoucher(ctx context.Context, profileID id.ProfileID) ([]*models.VouchEdge, error)
}

// Stores groups the trust graph stores a unit of work operates on.
type Stores struct {
	Profiles     ProfileStore
	JoinRequests JoinRequestStore
	Vouches      VouchStore
}
