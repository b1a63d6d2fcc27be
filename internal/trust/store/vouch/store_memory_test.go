package vouch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

func newEdge(t *testing.T, voucher, vouched id.ProfileID) *models.VouchEdge {
	t.Helper()
	e, err := models.NewVouchEdge(id.VouchEdgeID(uuid.New()), voucher, vouched, "neighbor", time.Now())
	require.NoError(t, err)
	return e
}

func TestInMemoryEdges(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	steward := id.ProfileID(uuid.New())
	ana := id.ProfileID(uuid.New())
	bo := id.ProfileID(uuid.New())

	first := newEdge(t, steward, ana)
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, newEdge(t, ana, bo)))
	assert.ErrorIs(t, store.Append(ctx, first), sentinel.ErrAlreadyUsed)

	incoming, err := store.ListByVouched(ctx, ana)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, steward, incoming[0].VoucherID)

	outgoing, err := store.ListByVoucher(ctx, ana)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, bo, outgoing[0].VouchedID)

	restore := store.Snapshot()
	require.NoError(t, store.Append(ctx, newEdge(t, steward, bo)))
	restore()
	incoming, err = store.ListByVouched(ctx, bo)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
}
