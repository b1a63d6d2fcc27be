// Package tx runs units of work in one database transaction and carries that
// transaction through context so every store touched by the unit joins it.
package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrBegin and ErrCommit mark failures of the transaction itself rather
	// than of the work inside it.
	ErrBegin  = errors.New("begin transaction")
	ErrCommit = errors.New("commit transaction")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so a store can run inside or
// outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Beginner opens transactions; *sql.DB implements it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type ctxKey struct{}

func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// Executor returns the transaction carried by ctx, or fallback when there is none.
func Executor(ctx context.Context, fallback DBTX) DBTX {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return fallback
}

// Run begins a transaction, calls fn with a ctx carrying it and commits when
// fn returns nil. Any error from fn rolls the transaction back and is
// returned unchanged.
func Run(ctx context.Context, db Beginner, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBegin, err)
	}
	if err := fn(WithTx(ctx, tx), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	return nil
}
