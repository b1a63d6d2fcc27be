package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/postgres"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	txcontext "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/tx"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	db txcontext.DBTX
}

// NewPostgres constructs a store over a database handle or transaction.
func NewPostgres(db txcontext.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, principal_id, name, email, role, vouched_at, vouched_by, created_at, updated_at`

func (s *PostgresStore) CreateIfEmailAvailable(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(p.ID),
		nullPrincipal(p.PrincipalID),
		p.Name,
		p.Email,
		string(p.Role),
		nullTime(p.VouchedAt),
		nullProfile(p.VouchedBy),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert profile rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(profileID))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return s.findOne(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *PostgresStore) FindByPrincipalID(ctx context.Context, principalID id.PrincipalID) (*models.Profile, error) {
	return s.findOne(ctx, `WHERE principal_id = $1`, uuid.UUID(principalID))
}

func (s *PostgresStore) MarkVouched(ctx context.Context, profileID id.ProfileID, vouchedBy *id.ProfileID, at time.Time) error {
	query := `
		UPDATE profiles
		SET vouched_at = $2, vouched_by = $3, updated_at = $2
		WHERE id = $1 AND vouched_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(profileID), at, nullProfile(vouchedBy))
	if err != nil {
		return fmt.Errorf("mark profile vouched: %w", err)
	}
	return s.requireOne(ctx, res, profileID, sentinel.ErrInvalidState)
}

func (s *PostgresStore) BindPrincipal(ctx context.Context, profileID id.ProfileID, principalID id.PrincipalID, at time.Time) error {
	query := `
		UPDATE profiles
		SET principal_id = $2, updated_at = $3
		WHERE id = $1 AND (principal_id IS NULL OR principal_id = $2)
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(profileID), uuid.UUID(principalID), at)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("bind profile principal: %w", err)
	}
	return s.requireOne(ctx, res, profileID, sentinel.ErrAlreadyUsed)
}

func (s *PostgresStore) SetRole(ctx context.Context, profileID id.ProfileID, role models.Role, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET role = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(profileID), string(role), at)
	if err != nil {
		return fmt.Errorf("set profile role: %w", err)
	}
	return s.requireOne(ctx, res, profileID, sentinel.ErrNotFound)
}

func (s *PostgresStore) ListVouched(ctx context.Context) ([]*models.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE vouched_at IS NOT NULL ORDER BY vouched_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list vouched profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles `+where, arg)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

// requireOne maps a zero-row CAS update to ErrNotFound when the row is missing
// and to conflict otherwise.
func (s *PostgresStore) requireOne(ctx context.Context, res sql.Result, profileID id.ProfileID, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, profileID); err != nil {
		return err
	}
	return conflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var (
		p           models.Profile
		profileID   uuid.UUID
		principalID uuid.NullUUID
		role        string
		vouchedAt   sql.NullTime
		vouchedBy   uuid.NullUUID
	)
	err := row.Scan(&profileID, &principalID, &p.Name, &p.Email, &role, &vouchedAt, &vouchedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.ID = id.ProfileID(profileID)
	p.Role = models.Role(role)
	if principalID.Valid {
		pid := id.PrincipalID(principalID.UUID)
		p.PrincipalID = &pid
	}
	if vouchedAt.Valid {
		at := vouchedAt.Time
		p.VouchedAt = &at
	}
	if vouchedBy.Valid {
		by := id.ProfileID(vouchedBy.UUID)
		p.VouchedBy = &by
	}
	return &p, nil
}

func nullPrincipal(v *id.PrincipalID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
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
