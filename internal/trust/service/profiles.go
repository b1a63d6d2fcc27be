package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	emailutil "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/email"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

// EnsureProfile returns the profile bound to principalID, creating it at first
// session establishment. A placeholder profile with the same email (created by
// an approval or a direct vouch) is claimed instead of duplicated.
func (s *Service) EnsureProfile(ctx context.Context, principalID id.PrincipalID, email, name string) (profile *models.Profile, err error) {
	ctx, end := s.startSpan(ctx, "ensure_profile",
		trace.WithAttributes(attribute.String("principal_id", principalID.String())))
	defer func() { end(err) }()

	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "principal required")
	}
	email = emailutil.Normalize(email)
	if !emailutil.Valid(email) {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	now := requestcontext.Now(ctx)
	var changed bool

	err = s.runInTx(ctx, "ensure_profile", func(ctx context.Context, stores Stores) error {
		changed = false
		p, err := stores.Profiles.FindByPrincipalID(ctx, principalID)
		switch {
		case err == nil:
		case errors.Is(err, sentinel.ErrNotFound):
			p, err = s.claimOrCreate(ctx, stores, principalID, email, name, now)
			if err != nil {
				return err
			}
			changed = true
		default:
			return storageError(err, "failed to load profile")
		}

		if _, ok := s.bootstrapStewards[p.Email]; ok && !p.IsSteward() {
			if err := stores.Profiles.SetRole(ctx, p.ID, models.RoleSteward, now); err != nil {
				return storageError(err, "failed to grant steward role")
			}
			p.Role = models.RoleSteward
			changed = true
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.InfoContext(ctx, "profile ensured",
			"profile_id", profile.ID.String(),
			"principal_id", principalID.String(),
			"role", string(profile.Role),
		)
	}
	return profile, nil
}

func (s *Service) claimOrCreate(ctx context.Context, stores Stores, principalID id.PrincipalID, email, name string, now time.Time) (*models.Profile, error) {
	p, err := stores.Profiles.FindByEmail(ctx, email)
	if err == nil {
		if err := p.CanClaim(principalID); err != nil {
			return nil, err
		}
		if err := stores.Profiles.BindPrincipal(ctx, p.ID, principalID, now); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, dErrors.New(dErrors.CodeConflict, "profile email belongs to another account")
			}
			return nil, storageError(err, "failed to claim profile")
		}
		p.ApplyClaim(principalID, now)
		if err := s.emitAudit(ctx, audit.EventProfileClaimed, principalID.String(), p.ID.String(), "email match"); err != nil {
			return nil, err
		}
		return p, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, storageError(err, "failed to look up profile")
	}

	if name == "" {
		name = emailutil.DeriveNameFromEmail(email)
	}
	// Profiles created at first sign-in share the principal's UUID.
	p, err = models.NewProfile(id.ProfileID(principalID), &principalID, name, email, now)
	if err != nil {
		return nil, err
	}
	if err := createProfile(ctx, stores.Profiles, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ProfileForPrincipal returns the profile bound to principalID.
func (s *Service) ProfileForPrincipal(ctx context.Context, principalID id.PrincipalID) (*models.Profile, error) {
	p, err := s.reads.Profiles.FindByPrincipalID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, storageError(err, "failed to load profile")
	}
	return p, nil
}

// findOrCreateByEmail returns the profile for email, creating an unbound
// placeholder named name when none exists.
func findOrCreateByEmail(ctx context.Context, profiles ProfileStore, name, email string, now time.Time) (*models.Profile, bool, error) {
	p, err := profiles.FindByEmail(ctx, email)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, storageError(err, "failed to look up profile")
	}
	if name == "" {
		name = emailutil.DeriveNameFromEmail(email)
	}
	p, err = models.NewProfile(id.ProfileID(uuid.New()), nil, name, email, now)
	if err != nil {
		return nil, false, err
	}
	if err := createProfile(ctx, profiles, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// createProfile inserts p. Losing an insert race to another transaction is
// reported as transient so the retry finds the winner's row.
func createProfile(ctx context.Context, profiles ProfileStore, p *models.Profile) error {
	if err := profiles.CreateIfEmailAvailable(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeConflict, "profile was created concurrently")
		}
		return storageError(err, "failed to create profile")
	}
	return nil
}
