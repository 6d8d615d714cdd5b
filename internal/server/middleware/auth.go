package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/shopkeeper/internal/server/handlers"
	"github.com/iudanet/shopkeeper/internal/server/tokens"
)

// AuthMiddleware создает middleware для проверки access token
func AuthMiddleware(logger *slog.Logger, tokenService *tokens.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header")
				http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("Invalid Authorization header format")
				http.Error(w, "Unauthorized: invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := tokenService.VerifyAccessToken(parts[1])
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			// Кладем ID пользователя из claims в контекст
			ctx := context.WithValue(r.Context(), handlers.UserIDKey, claims.Subject)

			logger.Debug("User authenticated", "user_id", claims.Subject)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
