package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/postgres"
	trustservice "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/service"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/joinrequest"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/profile"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/vouch"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
	txcontext "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/tx"
)

// trustPostgresTx runs trust graph mutations in one database transaction. The
// transaction is also placed in ctx so the audit store writes through it.
type trustPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newTrustPostgresTx(db *sql.DB, timeout time.Duration) *trustPostgresTx {
	return &trustPostgresTx{db: db, timeout: timeout}
}

func postgresStores(db txcontext.DBTX) trustservice.Stores {
	return trustservice.Stores{
		Profiles:     profile.NewPostgres(db),
		JoinRequests: joinrequest.NewPostgres(db),
		Vouches:      vouch.NewPostgres(db),
	}
}

func (t *trustPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores trustservice.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = trustservice.DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := txcontext.Run(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := fn(ctx, postgresStores(tx)); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, txcontext.ErrBegin), errors.Is(err, txcontext.ErrCommit), postgres.IsRetryable(err):
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
