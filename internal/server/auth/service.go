package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/shopkeeper/internal/crypto"
	"github.com/iudanet/shopkeeper/internal/identity"
	"github.com/iudanet/shopkeeper/internal/models"
	"github.com/iudanet/shopkeeper/internal/server/permissions"
	"github.com/iudanet/shopkeeper/internal/server/storage"
	"github.com/iudanet/shopkeeper/internal/server/tokens"
)

// DefaultPermissions выдаются каждому новому пользователю при создании
var DefaultPermissions = []string{"user:read", "shop:read", "product:read"}

// SessionResult содержит результат успешного входа или ротации
type SessionResult struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// Service orchestrates account provisioning, token issuance and refresh
// rotation. It is safe for concurrent use: all contended state lives in the
// stores, coordinated by unique constraints and compare-and-swap updates,
// so multiple service instances may run against the same database.
type Service struct {
	logger      *slog.Logger
	users       storage.UserStorage
	sessions    storage.SessionStorage
	permissions *permissions.Service
	tokens      *tokens.Service
}

// NewService creates the session service
func NewService(
	logger *slog.Logger,
	users storage.UserStorage,
	sessions storage.SessionStorage,
	perms *permissions.Service,
	tok *tokens.Service,
) *Service {
	return &Service{
		logger:      logger,
		users:       users,
		sessions:    sessions,
		permissions: perms,
		tokens:      tok,
	}
}

// OAuthRegister resolves the oauth identity to a local user (creating one
// if absent) and issues a fresh token pair. Every call - including repeats
// for the same identity - mints a brand-new pair and overwrites the prior
// refresh session, so only one refresh token per user is ever valid.
func (s *Service) OAuthRegister(ctx context.Context, ident identity.Identity) (*SessionResult, error) {
	if err := identity.Validate(ident); err != nil {
		return nil, err
	}

	user, err := s.findOrCreateUser(ctx, ident)
	if err != nil {
		return nil, err
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "oauth session issued",
		slog.String("user_id", user.ID),
		slog.String("provider", string(ident.Provider)))

	return result, nil
}

// findOrCreateUser реализует идемпотентную привязку oauth identity.
// При гонке одинаковых регистраций ровно одно создание выигрывает, а
// проигравшие перечитывают и возвращают того же пользователя (сходимость
// обеспечивает UNIQUE ограничение в store, а не блокировки в процессе).
func (s *Service) findOrCreateUser(ctx context.Context, ident identity.Identity) (*models.User, error) {
	account, err := s.users.FindOAuthAccount(ctx, ident.Provider, ident.ProfileID)
	if err == nil {
		// Политика: поля профиля (имя, аватар) при повторном входе НЕ
		// пересинхронизируются, чтобы не затирать локальные правки
		return s.users.GetUserByID(ctx, account.UserID)
	}
	if !errors.Is(err, storage.ErrOAuthAccountNotFound) {
		return nil, err
	}

	defaults, err := s.permissions.ResolveNames(ctx, DefaultPermissions)
	if err != nil {
		return nil, err
	}

	permissionIDs := make([]string, len(defaults))
	for i, p := range defaults {
		permissionIDs[i] = p.ID
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     ident.Email,
		Name:      ident.Name,
		AvatarURL: ident.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account = &models.OAuthAccount{
		UserID:            user.ID,
		Provider:          ident.Provider,
		ProviderProfileID: ident.ProfileID,
		OAuthUserID:       ident.ProfileID,
	}

	created, err := s.users.CreateUserWithOAuth(ctx, user, account, permissionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	if created.ID == user.ID {
		s.logger.InfoContext(ctx, "user provisioned",
			slog.String("user_id", created.ID),
			slog.String("provider", string(ident.Provider)))
	}

	return created, nil
}

// issueSession чеканит новую пару токенов и перезаписывает refresh-слот
func (s *Service) issueSession(ctx context.Context, user *models.User) (*SessionResult, error) {
	accessToken, _, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	refreshToken, _, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	session := &models.RefreshSession{
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refreshToken),
		IssuedAt:  time.Now().UTC(),
	}
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, err
	}

	return &SessionResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// RefreshToken rotates the presented refresh token. The presented token
// must match the user's current session slot; a stale hash or a lost
// compare-and-swap race is treated as reuse and rejected with ErrTokenReuse
// without touching the stored (newer) session.
func (s *Service) RefreshToken(ctx context.Context, presented string) (*SessionResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh token rejected", slog.Any("error", err))
		return nil, ErrUnauthenticated
	}

	userID := claims.Subject

	session, err := s.sessions.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	if !crypto.VerifyTokenHash(presented, session.TokenHash) {
		// Предъявлен токен, который уже был повернут или украден.
		// Существующий (более новый) слот не трогаем.
		s.logger.WarnContext(ctx, "refresh token reuse detected", slog.String("user_id", userID))
		return nil, ErrTokenReuse
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	refreshToken, _, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	swapped, err := s.sessions.CompareAndSwap(ctx, userID, session.TokenHash, crypto.HashToken(refreshToken), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Конкурирующий запрос уже повернул слот - для этого вызова токен
		// считается повторно использованным
		s.logger.WarnContext(ctx, "refresh rotation lost the race", slog.String("user_id", userID))
		return nil, ErrTokenReuse
	}

	s.logger.InfoContext(ctx, "refresh token rotated", slog.String("user_id", userID))

	return &SessionResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Logout drops the user's refresh session; repeated calls are harmless
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", userID))
	return nil
}
