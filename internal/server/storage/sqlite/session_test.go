package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/shopkeeper/internal/models"
	"github.com/iudanet/shopkeeper/internal/server/storage"
)

func createSessionUser(t *testing.T, ctx context.Context, s *Storage, email string) string {
	t.Helper()
	permIDs := defaultPermissionIDs(t, ctx, s)
	user, account := testIdentity(email)
	created, err := s.CreateUserWithOAuth(ctx, user, account, permIDs)
	require.NoError(t, err)
	return created.ID
}

func TestSessionStorage_Upsert(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createSessionUser(t, ctx, s, "upsert@example.com")

	first := &models.RefreshSession{
		UserID:    userID,
		TokenHash: "hash-0",
		IssuedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.Upsert(ctx, first))

	got, err := s.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "hash-0", got.TokenHash)

	// Повторный upsert перезаписывает строку, а не добавляет вторую
	second := &models.RefreshSession{
		UserID:    userID,
		TokenHash: "hash-1",
		IssuedAt:  time.Now().UTC().Add(time.Second),
	}
	require.NoError(t, s.Upsert(ctx, second))

	got, err = s.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.TokenHash)

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM refresh_sessions WHERE user_id = ?`, userID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionStorage_GetByUserID_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.GetByUserID(ctx, "no-such-user")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestSessionStorage_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createSessionUser(t, ctx, s, "cas@example.com")

	require.NoError(t, s.Upsert(ctx, &models.RefreshSession{
		UserID:    userID,
		TokenHash: "hash-0",
		IssuedAt:  time.Now().UTC(),
	}))

	t.Run("matching hash swaps", func(t *testing.T) {
		swapped, err := s.CompareAndSwap(ctx, userID, "hash-0", "hash-1", time.Now().UTC())
		require.NoError(t, err)
		assert.True(t, swapped)

		got, err := s.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "hash-1", got.TokenHash)
	})

	t.Run("stale hash does not swap", func(t *testing.T) {
		swapped, err := s.CompareAndSwap(ctx, userID, "hash-0", "hash-2", time.Now().UTC())
		require.NoError(t, err)
		assert.False(t, swapped)

		// Слот не изменился
		got, err := s.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "hash-1", got.TokenHash)
	})

	t.Run("missing session does not swap", func(t *testing.T) {
		swapped, err := s.CompareAndSwap(ctx, "no-such-user", "hash-0", "hash-1", time.Now().UTC())
		require.NoError(t, err)
		assert.False(t, swapped)
	})
}

func TestSessionStorage_Delete(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createSessionUser(t, ctx, s, "delete@example.com")

	require.NoError(t, s.Upsert(ctx, &models.RefreshSession{
		UserID:    userID,
		TokenHash: "hash-0",
		IssuedAt:  time.Now().UTC(),
	}))

	require.NoError(t, s.Delete(ctx, userID))

	_, err := s.GetByUserID(ctx, userID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	// Повторное удаление не является ошибкой
	assert.NoError(t, s.Delete(ctx, userID))
}
