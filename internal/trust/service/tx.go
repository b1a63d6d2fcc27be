package service

import (
	"context"
	"sync"
	"time"

	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// StoreTx provides the transactional boundary for trust graph mutations.
// Every write made through the Stores passed to fn commits together or not at
// all. Implementations may wrap a database transaction or, in memory, a lock
// plus snapshot restore.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// DefaultTxTimeout bounds a transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// Snapshotter is an in-memory store that can capture and restore its state.
type Snapshotter interface {
	Snapshot() (restore func())
}

// InMemoryTx serializes trust graph writers behind one lock and restores every
// participant's snapshot when fn fails.
type InMemoryTx struct {
	mu           sync.Mutex
	stores       Stores
	participants []Snapshotter
	timeout      time.Duration
}

// NewInMemoryTx wraps stores. participants are snapshotted before fn runs;
// pass every store in stores that implements Snapshotter.
func NewInMemoryTx(stores Stores, timeout time.Duration, participants ...Snapshotter) *InMemoryTx {
	return &InMemoryTx{stores: stores, participants: participants, timeout: timeout}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	restores := make([]func(), 0, len(t.participants))
	for _, p := range t.participants {
		restores = append(restores, p.Snapshot())
	}

	if err := fn(ctx, t.stores); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}
