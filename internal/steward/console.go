// Package steward is the moderation surface: reviewing join requests, direct
// vouches, bulk provisioning and repair. Every call authorizes the current
// session before reaching the trust service.
package steward

import (
	"context"
	"log/slog"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/guard"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/service"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
)

// Trust is the trust service surface the console drives.
type Trust interface {
	ListPending(ctx context.Context) ([]*models.JoinRequest, error)
	Approve(ctx context.Context, requestID id.JoinRequestID, stewardID id.ProfileID) (*service.Approval, error)
	Reject(ctx context.Context, requestID id.JoinRequestID, stewardID id.ProfileID) (*models.JoinRequest, error)
	VouchDirectly(ctx context.Context, voucherID id.ProfileID, targetEmail, note string) (*service.DirectVouch, error)
	BulkProvision(ctx context.Context, stewardID id.ProfileID) (*models.ProvisionResult, error)
	Reconcile(ctx context.Context) (*models.ReconcileReport, error)
	VouchTrail(ctx context.Context, profileID id.ProfileID) (*models.VouchTrail, error)
}

// Authorizer decides whether the caller bound to ctx meets a requirement.
type Authorizer interface {
	AuthorizeCurrent(ctx context.Context, req guard.Requirement) guard.Decision
}

type Console struct {
	trust  Trust
	guard  Authorizer
	logger *slog.Logger
}

func NewConsole(trust Trust, authorizer Authorizer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{trust: trust, guard: authorizer, logger: logger}
}

// actor returns the caller's profile once it meets req.
func (c *Console) actor(ctx context.Context, req guard.Requirement) (*models.Profile, error) {
	d := c.guard.AuthorizeCurrent(ctx, req)
	if err := d.Err(); err != nil {
		return nil, err
	}
	return d.Profile, nil
}

func (c *Console) ListPendingRequests(ctx context.Context) ([]*models.JoinRequest, error) {
	if _, err := c.actor(ctx, guard.RequireSteward); err != nil {
		return nil, err
	}
	return c.trust.ListPending(ctx)
}

func (c *Console) Approve(ctx context.Context, requestID id.JoinRequestID) (*service.Approval, error) {
	steward, err := c.actor(ctx, guard.RequireSteward)
	if err != nil {
		return nil, err
	}
	return c.trust.Approve(ctx, requestID, steward.ID)
}

func (c *Console) Reject(ctx context.Context, requestID id.JoinRequestID) (*models.JoinRequest, error) {
	steward, err := c.actor(ctx, guard.RequireSteward)
	if err != nil {
		return nil, err
	}
	return c.trust.Reject(ctx, requestID, steward.ID)
}

// VouchDirectly is open to any vouched member, not only stewards.
func (c *Console) VouchDirectly(ctx context.Context, targetEmail, note string) (*service.DirectVouch, error) {
	voucher, err := c.actor(ctx, guard.RequireVouched)
	if err != nil {
		return nil, err
	}
	return c.trust.VouchDirectly(ctx, voucher.ID, targetEmail, note)
}

func (c *Console) BulkProvision(ctx context.Context) (*models.ProvisionResult, error) {
	steward, err := c.actor(ctx, guard.RequireSteward)
	if err != nil {
		return nil, err
	}
	result, err := c.trust.BulkProvision(ctx, steward.ID)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "bulk provisioning finished",
		"steward_id", steward.ID.String(),
		"created", result.Summary.Created,
		"already_exists", result.Summary.AlreadyExists,
		"errors", result.Summary.Errors,
	)
	return result, nil
}

func (c *Console) Reconcile(ctx context.Context) (*models.ReconcileReport, error) {
	if _, err := c.actor(ctx, guard.RequireSteward); err != nil {
		return nil, err
	}
	return c.trust.Reconcile(ctx)
}

func (c *Console) VouchTrail(ctx context.Context, profileID id.ProfileID) (*models.VouchTrail, error) {
	if _, err := c.actor(ctx, guard.RequireSteward); err != nil {
		return nil, err
	}
	return c.trust.VouchTrail(ctx, profileID)
}
