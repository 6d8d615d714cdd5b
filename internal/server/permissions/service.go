package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/shopkeeper/internal/models"
	"github.com/iudanet/shopkeeper/internal/server/cache"
	"github.com/iudanet/shopkeeper/internal/server/storage"
)

// Permission service errors
var (
	// ErrSeedMissing indicates that the default permission rows are absent.
	// This is a fatal configuration error, not a per-request failure.
	ErrSeedMissing = errors.New("default permission seed is missing")

	// ErrNoPermissions indicates that an existing user has zero grants.
	// Bootstrap guarantees at least the default set, so this is a
	// data-integrity violation.
	ErrNoPermissions = errors.New("user has no permissions")
)

// cacheTTL ограничивает время жизни закешированного набора разрешений
const cacheTTL = 5 * time.Minute

// Service предоставляет чтение разрешений пользователей.
// Разрешения выдаются один раз при создании аккаунта, поэтому их можно
// агрессивно кешировать в Redis.
type Service struct {
	logger *slog.Logger
	store  storage.PermissionStorage
	cache  *cache.Cache
}

// NewService creates a permission service.
// cache may be nil, in which case every read goes to the store.
func NewService(logger *slog.Logger, store storage.PermissionStorage, c *cache.Cache) *Service {
	return &Service{
		logger: logger,
		store:  store,
		cache:  c,
	}
}

// ResolveNames resolves permission names to their records and fails with
// ErrSeedMissing when any requested name is absent from the store.
func (s *Service) ResolveNames(ctx context.Context, names []string) ([]models.Permission, error) {
	permissions, err := s.store.GetPermissionsByName(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permission names: %w", err)
	}

	if len(permissions) != len(names) {
		s.logger.ErrorContext(ctx, "permission seed is incomplete",
			slog.Int("expected", len(names)),
			slog.Int("found", len(permissions)))
		return nil, ErrSeedMissing
	}

	return permissions, nil
}

// GetUserPermissions returns the names of all permissions granted to the
// user. Returns ErrNoPermissions if the set is unexpectedly empty.
func (s *Service) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	if names, ok := s.fromCache(ctx, userID); ok {
		return names, nil
	}

	permissions, err := s.store.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}

	if len(permissions) == 0 {
		return nil, ErrNoPermissions
	}

	names := make([]string, len(permissions))
	for i, p := range permissions {
		names[i] = p.Name
	}

	s.toCache(ctx, userID, names)

	return names, nil
}

func cacheKey(userID string) string {
	return "permissions:" + userID
}

// fromCache пытается прочитать набор из кеша; ошибки кеша не фатальны
func (s *Service) fromCache(ctx context.Context, userID string) ([]string, bool) {
	if s.cache == nil {
		return nil, false
	}

	b, err := s.cache.Get(ctx, cacheKey(userID))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "permission cache read failed", slog.Any("error", err))
		}
		return nil, false
	}

	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		s.logger.WarnContext(ctx, "permission cache entry is corrupt", slog.Any("error", err))
		return nil, false
	}

	return names, true
}

func (s *Service) toCache(ctx context.Context, userID string, names []string) {
	if s.cache == nil {
		return
	}

	b, err := json.Marshal(names)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, cacheKey(userID), b, cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "permission cache write failed", slog.Any("error", err))
	}
}
