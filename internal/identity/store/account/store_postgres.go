package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/postgres"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	txcontext "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/tx"
)

// PostgresStore persists accounts in the accounts table.
type PostgresStore struct {
	db txcontext.DBTX
}

func NewPostgres(db txcontext.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, email, display_name, password_hash, activation_hash, activation_expires_at, status, created_at`

func (s *PostgresStore) Create(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID),
		a.Email,
		a.Name,
		nullBytes(a.PasswordHash),
		nullBytes(a.ActivationHash),
		nullTime(a.ActivationExpiresAt),
		string(a.Status),
		a.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		if postgres.IsRetryable(err) {
			return fmt.Errorf("%w: insert account: %w", sentinel.ErrUnavailable, err)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Account, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(principalID))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.findOne(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *PostgresStore) Activate(ctx context.Context, principalID id.PrincipalID, passwordHash []byte, _ time.Time) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, activation_hash = NULL, activation_expires_at = NULL, status = 'active'
		WHERE id = $1 AND status = 'pending_activation'
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(principalID), string(passwordHash))
	if err != nil {
		return fmt.Errorf("activate account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate account rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, principalID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) ReissueActivation(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE accounts
		SET display_name = $2, password_hash = $3, activation_hash = $4, activation_expires_at = $5
		WHERE id = $1 AND status = 'pending_activation'
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID),
		a.Name,
		nullBytes(a.PasswordHash),
		nullBytes(a.ActivationHash),
		nullTime(a.ActivationExpiresAt),
	)
	if err != nil {
		if postgres.IsRetryable(err) {
			return fmt.Errorf("%w: reissue activation: %w", sentinel.ErrUnavailable, err)
		}
		return fmt.Errorf("reissue activation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reissue activation rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, a.ID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	var (
		a              models.Account
		principalID    uuid.UUID
		passwordHash   sql.NullString
		activationHash sql.NullString
		expiresAt      sql.NullTime
		status         string
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts `+where, arg).
		Scan(&principalID, &a.Email, &a.Name, &passwordHash, &activationHash, &expiresAt, &status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	a.ID = id.PrincipalID(principalID)
	a.Status = models.AccountStatus(status)
	if passwordHash.Valid {
		a.PasswordHash = []byte(passwordHash.String)
	}
	if activationHash.Valid {
		a.ActivationHash = []byte(activationHash.String)
	}
	if expiresAt.Valid {
		at := expiresAt.Time
		a.ActivationExpiresAt = &at
	}
	return &a, nil
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
