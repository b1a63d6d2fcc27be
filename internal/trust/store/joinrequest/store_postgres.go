package joinrequest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	txcontext "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/tx"
)

// PostgresStore persists join requests in PostgreSQL.
type PostgresStore struct {
	db txcontext.DBTX
}

// NewPostgres constructs a store over a database handle or transaction.
func NewPostgres(db txcontext.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, name, email, intro, status, requested_at, reviewed_by, reviewed_at, voucher_id, profile_id`

func (s *PostgresStore) CreateIfEmailAvailable(ctx context.Context, r *models.JoinRequest) error {
	query := `
		INSERT INTO join_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(r.ID),
		r.Name,
		r.Email,
		r.Intro,
		string(r.Status),
		r.RequestedAt,
		nullProfile(r.ReviewedBy),
		nullTime(r.ReviewedAt),
		nullProfile(r.VoucherID),
		nullProfile(r.ProfileID),
	)
	if err != nil {
		return fmt.Errorf("insert join request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert join request rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.JoinRequestID) (*models.JoinRequest, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(requestID))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, requestID id.JoinRequestID) (*models.JoinRequest, error) {
	return s.findOne(ctx, `WHERE id = $1 FOR UPDATE`, uuid.UUID(requestID))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.JoinRequest, error) {
	return s.findOne(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.JoinRequestStatus) ([]*models.JoinRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM join_requests WHERE status = $1 ORDER BY requested_at ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	defer rows.Close()

	var out []*models.JoinRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate join requests: %w", err)
	}
	return out, nil
}

// MarkReviewed is a compare-and-swap on status = 'pending'.
func (s *PostgresStore) MarkReviewed(ctx context.Context, r *models.JoinRequest) error {
	query := `
		UPDATE join_requests
		SET status = $2, reviewed_by = $3, reviewed_at = $4, voucher_id = $5, profile_id = $6
		WHERE id = $1 AND status = 'pending'
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(r.ID),
		string(r.Status),
		nullProfile(r.ReviewedBy),
		nullTime(r.ReviewedAt),
		nullProfile(r.VoucherID),
		nullProfile(r.ProfileID),
	)
	if err != nil {
		return fmt.Errorf("mark join request reviewed: %w", err)
	}
	return s.requireOne(ctx, res, r.ID)
}

func (s *PostgresStore) LinkProfile(ctx context.Context, requestID id.JoinRequestID, profileID id.ProfileID) error {
	query := `
		UPDATE join_requests
		SET profile_id = $2
		WHERE id = $1 AND (profile_id IS NULL OR profile_id = $2)
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(requestID), uuid.UUID(profileID))
	if err != nil {
		return fmt.Errorf("link join request profile: %w", err)
	}
	return s.requireOne(ctx, res, requestID)
}

func (s *PostgresStore) requireOne(ctx context.Context, res sql.Result, requestID id.JoinRequestID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, requestID); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.JoinRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM join_requests `+where, arg)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.JoinRequest, error) {
	var (
		r          models.JoinRequest
		requestID  uuid.UUID
		status     string
		reviewedBy uuid.NullUUID
		reviewedAt sql.NullTime
		voucherID  uuid.NullUUID
		profileID  uuid.NullUUID
	)
	err := row.Scan(&requestID, &r.Name, &r.Email, &r.Intro, &status, &r.RequestedAt, &reviewedBy, &reviewedAt, &voucherID, &profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan join request: %w", err)
	}
	r.ID = id.JoinRequestID(requestID)
	r.Status = models.JoinRequestStatus(status)
	r.ReviewedBy = profilePtr(reviewedBy)
	r.VoucherID = profilePtr(voucherID)
	r.ProfileID = profilePtr(profileID)
	if reviewedAt.Valid {
		at := reviewedAt.Time
		r.ReviewedAt = &at
	}
	return &r, nil
}

func profilePtr(v uuid.NullUUID) *id.ProfileID {
	if !v.Valid {
		return nil
	}
	p := id.ProfileID(v.UUID)
	return &p
}

func nullProfile(v *id.ProfileID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
