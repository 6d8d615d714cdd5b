package api

import "time"

// OAuthIdentityRequest представляет identity, полученную от OAuth провайдера
// (провайдер задается в пути запроса)
type OAuthIdentityRequest struct {
	ProfileID string `json:"profile_id"` // ID профиля в рамках провайдера
	Email     string `json:"email"`      // email из профиля
	Name      string `json:"name"`       // отображаемое имя
	AvatarURL string `json:"avatar_url"` // URL аватара, опционально
}

// UserView представляет публичное представление пользователя
// (без password_hash)
type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionResponse представляет ответ с пользователем и парой токенов
type SessionResponse struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"access_token"`  // JWT access token
	RefreshToken string   `json:"refresh_token"` // JWT refresh token
}

// PermissionsResponse представляет список разрешений пользователя
type PermissionsResponse struct {
	Permissions []string `json:"permissions"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
