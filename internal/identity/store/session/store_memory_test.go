package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

func newSession(now time.Time) *models.Session {
	return &models.Session{
		ID:          id.SessionID(uuid.New()),
		PrincipalID: id.PrincipalID(uuid.New()),
		Status:      models.SessionStatusActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestInMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewInMemory()
	sess := newSession(now)

	require.NoError(t, store.Create(ctx, sess))
	assert.ErrorIs(t, store.Create(ctx, sess), sentinel.ErrAlreadyUsed)

	found, err := store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, found.IsActive(now))

	ended, err := store.EndIfActive(ctx, sess.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, ended.Status)

	found, err = store.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, found.IsActive(now))

	_, err = store.EndIfActive(ctx, sess.ID, now)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	_, err = store.FindByID(ctx, id.SessionID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryConcurrentEnd(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	sess := newSession(time.Now())
	require.NoError(t, store.Create(ctx, sess))

	var wg sync.WaitGroup
	var wins atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.EndIfActive(ctx, sess.ID, time.Now()); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
