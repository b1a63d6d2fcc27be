package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	txcontext "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store against the audit_events table. When a transaction
// is present in ctx the insert joins it, so an audit write failure aborts the
// surrounding state change.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) txcontext.DBTX {
	return txcontext.Executor(ctx, s.db)
}

// Append inserts an audit event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()
	query := `
		INSERT INTO audit_events (id, category, action, actor_id, subject, reason, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Action,
		nullableString(event.ActorID),
		event.Subject,
		nullableString(event.Reason),
		nullableString(event.RequestID),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events about subject, oldest first.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	query := `
		SELECT category, action, actor_id, subject, reason, request_id, created_at
		FROM audit_events
		WHERE subject = $1
		ORDER BY created_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                          audit.Event
			category                   string
			actorID, reason, requestID sql.NullString
		)
		if err := rows.Scan(&category, &e.Action, &actorID, &e.Subject, &reason, &requestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.ActorID = actorID.String
		e.Reason = reason.String
		e.RequestID = requestID.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
