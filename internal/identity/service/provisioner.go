package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	emailutil "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/email"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/requestcontext"
)

// Provisioner creates accounts on behalf of stewards. It only needs the
// account store, so the trust service can depend on it without a cycle.
type Provisioner struct {
	accounts AccountStore
	audit    AuditPublisher
	logger   *slog.Logger
	cfg      Config
}

func NewProvisioner(accounts AccountStore, cfg Config, auditPublisher AuditPublisher, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{accounts: accounts, audit: auditPublisher, logger: logger, cfg: cfg.withDefaults()}
}

// CreateAccount returns the account for email, creating a pending one when
// none exists. An account that is still pending gets a fresh activation token
// so a run that stopped before delivering the first one can be repeated.
// Active accounts are returned with Created false and no token.
func (p *Provisioner) CreateAccount(ctx context.Context, email string) (*models.ProvisionedAccount, error) {
	email = emailutil.Normalize(email)
	if !emailutil.Valid(email) {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if existing, err := p.reissueExisting(ctx, email, false); existing != nil || err != nil {
		return existing, err
	}

	token, hash, err := issueActivationToken(p.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	account, err := models.NewProvisionedAccount(id.PrincipalID(uuid.New()), email, hash, now.Add(p.cfg.ActivationTTL), now)
	if err != nil {
		return nil, err
	}
	if err := p.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost a race with registration or another provisioning run.
			existing, err := p.reissueExisting(ctx, email, false)
			if existing == nil && err == nil {
				err = dErrors.New(dErrors.CodeConflict, "account email is taken")
			}
			return existing, err
		}
		return nil, storageError(err, "failed to create account")
	}
	emitAudit(ctx, p.audit, p.logger, audit.EventAccountCreated, "", email, "provisioned")
	return &models.ProvisionedAccount{
		PrincipalID:     account.ID,
		Email:           email,
		Created:         true,
		ActivationToken: token,
	}, nil
}

// RenewExpiredActivation reissues the activation token of a pending account
// whose token has expired. Any other account is returned without a token.
func (p *Provisioner) RenewExpiredActivation(ctx context.Context, email string) (*models.ProvisionedAccount, error) {
	email = emailutil.Normalize(email)
	existing, err := p.reissueExisting(ctx, email, true)
	if existing == nil && err == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	return existing, err
}

// reissueExisting loads the account for email and, while it is pending,
// replaces its activation token. With onlyExpired set a token that is still
// usable is left alone. It returns nil, nil when no account exists.
func (p *Provisioner) reissueExisting(ctx context.Context, email string, onlyExpired bool) (*models.ProvisionedAccount, error) {
	account, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, storageError(err, "failed to load account")
	}
	result := &models.ProvisionedAccount{PrincipalID: account.ID, Email: account.Email}
	now := requestcontext.Now(ctx)
	if account.Status != models.AccountStatusPendingActivation || (onlyExpired && !account.ActivationExpired(now)) {
		return result, nil
	}

	token, hash, err := issueActivationToken(p.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	// The steward's token replaces any unconfirmed sign-up password.
	account.ApplyReissue(nil, hash, now.Add(p.cfg.ActivationTTL))
	if err := p.accounts.ReissueActivation(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// Activated concurrently.
			return result, nil
		}
		return nil, storageError(err, "failed to reissue activation token")
	}
	emitAudit(ctx, p.audit, p.logger, audit.EventActivationReissued, "", email, "provisioned")
	result.ActivationToken = token
	return result, nil
}

// issueActivationToken returns a random token and its bcrypt hash.
func issueActivationToken(cost int) (string, []byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate activation token")
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash activation token")
	}
	return token, hash, nil
}
