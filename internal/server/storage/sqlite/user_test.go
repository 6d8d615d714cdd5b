package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/shopkeeper/internal/models"
	"github.com/iudanet/shopkeeper/internal/server/storage"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()
	ctx := context.Background()

	// Используем in-memory database для тестов
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}

	return s, cleanup
}

func testIdentity(email string) (*models.User, *models.OAuthAccount) {
	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      "Test User",
		AvatarURL: "https://example.com/avatar.png",
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := &models.OAuthAccount{
		UserID:            user.ID,
		Provider:          models.ProviderGitHub,
		ProviderProfileID: uuid.New().String()[:8],
		OAuthUserID:       "84938493",
	}
	return user, account
}

func defaultPermissionIDs(t *testing.T, ctx context.Context, s *Storage) []string {
	t.Helper()
	perms, err := s.GetPermissionsByName(ctx, []string{"user:read", "shop:read", "product:read"})
	require.NoError(t, err)
	require.Len(t, perms, 3)

	ids := make([]string, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	return ids
}

func TestUserStorage_CreateUserWithOAuth(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	permIDs := defaultPermissionIDs(t, ctx, s)
	user, account := testIdentity("create@example.com")

	created, err := s.CreateUserWithOAuth(ctx, user, account, permIDs)
	require.NoError(t, err)
	assert.Equal(t, user.ID, created.ID)

	// Пользователь, связка и гранты созданы одной единицей
	saved, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "create@example.com", saved.Email)

	link, err := s.FindOAuthAccount(ctx, account.Provider, account.ProviderProfileID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, link.UserID)
	assert.Equal(t, "84938493", link.OAuthUserID)

	granted, err := s.GetUserPermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, granted, 3)
}

func TestUserStorage_CreateUserWithOAuth_DuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	permIDs := defaultPermissionIDs(t, ctx, s)
	user, account := testIdentity("dup@example.com")

	first, err := s.CreateUserWithOAuth(ctx, user, account, permIDs)
	require.NoError(t, err)

	// Повторная вставка той же identity возвращает уже созданного
	// пользователя вместо ошибки
	again, againAccount := testIdentity("dup@example.com")
	againAccount.Provider = account.Provider
	againAccount.ProviderProfileID = account.ProviderProfileID

	second, err := s.CreateUserWithOAuth(ctx, again, againAccount, permIDs)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Ровно одна связка и один набор грантов
	granted, err := s.GetUserPermissions(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, granted, 3)
}

func TestUserStorage_CreateUserWithOAuth_EmailTaken(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	permIDs := defaultPermissionIDs(t, ctx, s)
	user, account := testIdentity("taken@example.com")

	_, err := s.CreateUserWithOAuth(ctx, user, account, permIDs)
	require.NoError(t, err)

	// Тот же email, но другая oauth identity - настоящий конфликт
	other, otherAccount := testIdentity("taken@example.com")
	otherAccount.Provider = models.ProviderDiscord

	_, err = s.CreateUserWithOAuth(ctx, other, otherAccount, permIDs)
	assert.ErrorIs(t, err, storage.ErrEmailTaken)
}

func TestUserStorage_CreateUserWithOAuth_Concurrent(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	permIDs := defaultPermissionIDs(t, ctx, s)

	const goroutines = 8

	var wg sync.WaitGroup
	results := make([]string, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user, account := testIdentity("race@example.com")
			account.ProviderProfileID = "999999"

			created, err := s.CreateUserWithOAuth(ctx, user, account, permIDs)
			if err != nil {
				errs[n] = err
				return
			}
			results[n] = created.ID
		}(i)
	}
	wg.Wait()

	// Все вызовы сошлись на одном пользователе
	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < goroutines; i++ {
		assert.Equal(t, results[0], results[i])
	}

	granted, err := s.GetUserPermissions(ctx, results[0])
	require.NoError(t, err)
	assert.Len(t, granted, 3)
}

func TestUserStorage_FindOAuthAccount_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.FindOAuthAccount(ctx, models.ProviderGitHub, "does-not-exist")
	assert.ErrorIs(t, err, storage.ErrOAuthAccountNotFound)
}

func TestUserStorage_GetUserByID_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.GetUserByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestUserStorage_CascadeDelete(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	permIDs := defaultPermissionIDs(t, ctx, s)
	user, account := testIdentity("cascade@example.com")

	_, err := s.CreateUserWithOAuth(ctx, user, account, permIDs)
	require.NoError(t, err)

	err = s.Upsert(ctx, &models.RefreshSession{
		UserID:    user.ID,
		TokenHash: "hash",
		IssuedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	// Удаление пользователя каскадно удаляет связку, сессию и гранты
	_, err = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, user.ID)
	require.NoError(t, err)

	_, err = s.FindOAuthAccount(ctx, account.Provider, account.ProviderProfileID)
	assert.ErrorIs(t, err, storage.ErrOAuthAccountNotFound)

	_, err = s.GetByUserID(ctx, user.ID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	granted, err := s.GetUserPermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, granted)
}
