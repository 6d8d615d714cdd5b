package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/shopkeeper/internal/identity"
	"github.com/iudanet/shopkeeper/internal/models"
	"github.com/iudanet/shopkeeper/internal/server/auth"
	"github.com/iudanet/shopkeeper/internal/server/permissions"
	"github.com/iudanet/shopkeeper/internal/server/storage"
	"github.com/iudanet/shopkeeper/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

// UserIDKey хранит ID аутентифицированного пользователя в контексте запроса
const UserIDKey contextKey = "user_id"

// Параметры повторов для транзиентных ошибок store
const (
	retryBase = 50 * time.Millisecond
	retryMax  = 3
)

// SessionService defines the session operations the HTTP layer depends on
type SessionService interface {
	OAuthRegister(ctx context.Context, ident identity.Identity) (*auth.SessionResult, error)
	RefreshToken(ctx context.Context, presented string) (*auth.SessionResult, error)
	Logout(ctx context.Context, userID string) error
}

// PermissionReader defines read access to user permissions
type PermissionReader interface {
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
}

// AuthHandler обрабатывает запросы аутентификации
type AuthHandler struct {
	logger   *slog.Logger
	sessions SessionService
	perms    PermissionReader
}

// NewAuthHandler создает новый handler для аутентификации
func NewAuthHandler(logger *slog.Logger, sessions SessionService, perms PermissionReader) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		sessions: sessions,
		perms:    perms,
	}
}

// OAuthRegister обрабатывает POST /api/v1/auth/oauth/{provider}
// Принимает identity от OAuth провайдера, создает или находит пользователя
// и выдает новую пару токенов
func (h *AuthHandler) OAuthRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	provider := r.PathValue("provider")

	var req api.OAuthIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode oauth identity", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ident := identity.Identity{
		Provider:  models.Provider(provider),
		ProfileID: req.ProfileID,
		Email:     req.Email,
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
	}

	var result *auth.SessionResult
	err := h.withRetry(ctx, func(ctx context.Context) error {
		var err error
		result, err = h.sessions.OAuthRegister(ctx, ident)
		return err
	})
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}

	h.sendJSON(w, sessionResponse(result), http.StatusOK)
}

// Refresh обрабатывает POST /api/v1/auth/refresh
// Ожидает refresh token в заголовке Authorization: Bearer <token>
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := bearerToken(r)
	if !ok {
		h.sendError(w, "refresh token is required", http.StatusUnauthorized)
		return
	}

	var result *auth.SessionResult
	err := h.withRetry(ctx, func(ctx context.Context) error {
		var err error
		result, err = h.sessions.RefreshToken(ctx, token)
		return err
	})
	if err != nil {
		h.writeSessionError(ctx, w, err)
		return
	}

	h.sendJSON(w, sessionResponse(result), http.StatusOK)
}

// Logout обрабатывает POST /api/v1/auth/logout
// Требует аутентификации (middleware кладет user_id в контекст)
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		h.sendError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.sessions.Logout(ctx, userID); err != nil {
		h.logger.ErrorContext(ctx, "logout failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Permissions обрабатывает GET /api/v1/auth/me/permissions
func (h *AuthHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		h.sendError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	names, err := h.perms.GetUserPermissions(ctx, userID)
	if err != nil {
		if errors.Is(err, permissions.ErrNoPermissions) {
			// Bootstrap гарантирует непустой набор - это нарушение целостности
			h.logger.ErrorContext(ctx, "user has no permissions", slog.String("user_id", userID))
			h.sendError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get permissions", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, api.PermissionsResponse{Permissions: names}, http.StatusOK)
}

// withRetry повторяет операцию с backoff только для транзиентных ошибок
// store; ошибки таксономии (reuse, unauthenticated, конфликты) не повторяются
func (h *AuthHandler) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(retryMax, retry.NewFibonacci(retryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && errors.Is(err, storage.ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// writeSessionError маппит ошибки session core на HTTP статусы,
// не раскрывая внутренних деталей
func (h *AuthHandler) writeSessionError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrValidationFailed):
		h.sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrUnauthenticated):
		h.sendError(w, "invalid or expired token", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrTokenReuse):
		h.sendError(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, storage.ErrEmailTaken):
		h.sendError(w, "email already registered", http.StatusConflict)
	case errors.Is(err, permissions.ErrSeedMissing):
		// Фатальная ошибка конфигурации, оператор увидит ее в логах
		h.logger.ErrorContext(ctx, "permission seed missing", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	default:
		h.logger.ErrorContext(ctx, "session operation failed", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	}
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

func sessionResponse(result *auth.SessionResult) api.SessionResponse {
	return api.SessionResponse{
		User: api.UserView{
			ID:        result.User.ID,
			Email:     result.User.Email,
			Name:      result.User.Name,
			AvatarURL: result.User.AvatarURL,
			CreatedAt: result.User.CreatedAt,
		},
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}
}

// sendJSON отправляет JSON ответ
func (h *AuthHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h *AuthHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
}
