package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/shopkeeper/internal/identity"
	"github.com/iudanet/shopkeeper/internal/models"
	"github.com/iudanet/shopkeeper/internal/server/permissions"
	"github.com/iudanet/shopkeeper/internal/server/storage/sqlite"
	"github.com/iudanet/shopkeeper/internal/server/tokens"
)

var testIdentity = identity.Identity{
	Provider:  models.ProviderGitHub,
	ProfileID: "84938493",
	Email:     "a@example.com",
	Name:      "Test",
	AvatarURL: "https://example.com/test-avatar.jpg",
}

func setupTestService(t *testing.T) (*Service, *sqlite.Storage) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokenService := tokens.NewService("integration-test-secret", "shopkeeper-test", 15*time.Minute, 7*24*time.Hour)
	permissionService := permissions.NewService(logger, store, nil)

	return NewService(logger, store, store, permissionService, tokenService), store
}

func TestOAuthRegister_CreatesUser(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestService(t)

	result, err := s.OAuthRegister(ctx, testIdentity)
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", result.User.Email)
	assert.Equal(t, "Test", result.User.Name)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)

	// Связка с провайдером создана
	account, err := store.FindOAuthAccount(ctx, models.ProviderGitHub, "84938493")
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, account.UserID)
	assert.Equal(t, "84938493", account.OAuthUserID)

	// Дефолтные разрешения выданы при создании
	granted, err := store.GetUserPermissions(ctx, result.User.ID)
	require.NoError(t, err)
	names := make([]string, len(granted))
	for i, p := range granted {
		names[i] = p.Name
	}
	assert.ElementsMatch(t, []string{"user:read", "shop:read", "product:read"}, names)

	// Refresh-слот создан
	session, err := store.GetByUserID(ctx, result.User.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.TokenHash)
}

func TestOAuthRegister_RepeatReturnsSameUserWithFreshTokens(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestService(t)

	first, err := s.OAuthRegister(ctx, testIdentity)
	require.NoError(t, err)

	second, err := s.OAuthRegister(ctx, testIdentity)
	require.NoError(t, err)

	// Тот же пользователь, но новая пара токенов
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestOAuthRegister_DoesNotResyncProfile(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestService(t)

	first, err := s.OAuthRegister(ctx, testIdentity)
	require.NoError(t, err)

	changed := testIdentity
	changed.Name = "Renamed In Provider"
	changed.AvatarURL = "https://example.com/new-avatar.jpg"

	second, err := s.OAuthRegister(ctx, changed)
	require.NoError(t, err)

	// Поля профиля намеренно не пересинхронизируются
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "Test", second.User.Name)
	assert.Equal(t, "https://example.com/test-avatar.jpg", second.User.AvatarURL)
}

func TestOAuthRegister_ConcurrentCallsConverge(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestService(t)

	const goroutines = 8

	var wg sync.WaitGroup
	results := make([]*SessionResult, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = s.OAuthRegister(ctx, testIdentity)
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < goroutines; i++ {
		assert.Equal(t, results[0].User.ID, results[i].User.ID)
	}

	// Ровно один набор дефолтных грантов
	granted, err := store.GetUserPermissions(ctx, results[0].User.ID)
	require.NoError(t, err)
	assert.Len(t, granted, 3)
}

func TestOAuthRegister_RejectsInvalidIdentity(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestService(t)

	bad := testIdentity
	bad.Email = "not-an-email"

	_, err := s.OAuthRegister(ctx, bad)
	assert.ErrorIs(t, err, identity.ErrValidationFailed)
}

func TestRefreshToken_RotatesSession(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestService(t)

	registered, err := s.OAuthRegister(ctx, testIdentity)
	require.NoError(t, err)

	before, err := store.GetByUserID(ctx, registered.User.ID)
	require.NoError(t, err)

	rotated, err := s.RefreshToken(ctx, registered.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, registered.User.ID, rotated.User.ID)
	assert.NotEqual(t, registered.AccessToken, rotated.AccessToken)
	assert.NotEqual(t, registered.RefreshToken, rotated.RefreshToken)

	// Слот перезаписан: новый хеш, строго более позднее время выдачи
	after, err := store.GetByUserID(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.TokenHash, after.TokenHash)
	assert.True(t, after.IssuedAt.After(before.IssuedAt))
}

func TestRefreshToken_ReplayIsForbidden(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestService(t)

	registered, err := s.OAuthRegister(ctx, testIdentity)
	require.NoError(t, err)

	rotated, err := s.RefreshToken(ctx, registered.RefreshToken)
	require.NoError(t, err)

	// Повтор исходного токена после ротации - событие reuse
	_, err = s.RefreshToken(ctx, registered.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenReuse)

	// Существующий (более новый) слот не тронут: текущий токен еще работает
	after, err := store.GetByUserID(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, after.TokenHash)

	_, err = s.RefreshToken(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshToken_Unauthenticated(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestService(t)

	t.Run("garbage token", func(t *testing.T) {
		_, err := s.RefreshToken(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("valid token without session", func(t *testing.T) {
		registered, err := s.OAuthRegister(ctx, testIdentity)
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, registered.User.ID))

		_, err = s.RefreshToken(ctx, registered.RefreshToken)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	s, store := setupTestService(t)

	registered, err := s.OAuthRegister(ctx, testIdentity)
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx, registered.User.ID))

	_, err = store.GetByUserID(ctx, registered.User.ID)
	assert.Error(t, err)

	// Logout идемпотентен
	assert.NoError(t, s.Logout(ctx, registered.User.ID))

	// После logout refresh невозможен
	_, err = s.RefreshToken(ctx, registered.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
