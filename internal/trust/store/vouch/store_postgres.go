package vouch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/postgres"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	txcontext "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/tx"
)

// PostgresStore persists vouch edges in PostgreSQL.
type PostgresStore struct {
	db txcontext.DBTX
}

// NewPostgres constructs a store over a database handle or transaction.
func NewPostgres(db txcontext.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, edge *models.VouchEdge) error {
	query := `
		INSERT INTO vouch_edges (id, voucher_id, vouched_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(edge.ID),
		uuid.UUID(edge.VoucherID),
		uuid.UUID(edge.VouchedID),
		edge.Note,
		edge.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("append vouch edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByVouched(ctx context.Context, profileID id.ProfileID) ([]*models.VouchEdge, error) {
	return s.list(ctx, `WHERE vouched_id = $1`, profileID)
}

func (s *PostgresStore) ListByVoucher(ctx context.Context, profileID id.ProfileID) ([]*models.VouchEdge, error) {
	return s.list(ctx, `WHERE voucher_id = $1`, profileID)
}

func (s *PostgresStore) list(ctx context.Context, where string, profileID id.ProfileID) ([]*models.VouchEdge, error) {
	query := `SELECT id, voucher_id, vouched_id, note, created_at FROM vouch_edges ` + where + ` ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(profileID))
	if err != nil {
		return nil, fmt.Errorf("list vouch edges: %w", err)
	}
	defer rows.Close()

	var out []*models.VouchEdge
	for rows.Next() {
		var (
			e                          models.VouchEdge
			edgeID, voucher, vouchedID uuid.UUID
		)
		if err := rows.Scan(&edgeID, &voucher, &vouchedID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vouch edge: %w", err)
		}
		e.ID = id.VouchEdgeID(edgeID)
		e.VoucherID = id.ProfileID(voucher)
		e.VouchedID = id.ProfileID(vouchedID)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vouch edges: %w", err)
	}
	return out, nil
}
