package models

import "time"

// Provider определяет поддерживаемые OAuth провайдеры
type Provider string

const (
	// ProviderGitHub - OAuth через GitHub
	ProviderGitHub Provider = "github"
	// ProviderDiscord - OAuth через Discord
	ProviderDiscord Provider = "discord"
	// ProviderGoogle - OAuth через Google
	ProviderGoogle Provider = "google"
)

// User представляет пользователя магазина
type User struct {
	ID           string    `json:"id"`         // UUID пользователя
	Email        string    `json:"email"`      // уникальный email
	Name         string    `json:"name"`       // отображаемое имя
	AvatarURL    string    `json:"avatar_url"` // URL аватара от провайдера
	PasswordHash string    `json:"-"`          // не используется OAuth-потоком, никогда не сериализуется
	CreatedAt    time.Time `json:"created_at"` // время создания
	UpdatedAt    time.Time `json:"updated_at"` // время последнего обновления
}

// OAuthAccount связывает пользователя с аккаунтом внешнего провайдера.
// Не более одной записи на (provider, provider_profile_id) и не более
// одной записи на пользователя. После создания не изменяется.
type OAuthAccount struct {
	UserID            string   `json:"user_id"`             // ID пользователя (1:1)
	Provider          Provider `json:"provider"`            // имя провайдера
	ProviderProfileID string   `json:"provider_profile_id"` // ID профиля в рамках провайдера
	OAuthUserID       string   `json:"oauth_user_id"`       // сырой ID пользователя у провайдера
}

// RefreshSession представляет единственный действующий refresh token пользователя.
// На пользователя существует ровно 0 или 1 запись; при каждой успешной
// ротации запись перезаписывается, а не добавляется.
type RefreshSession struct {
	UserID    string    `json:"user_id"`    // ID пользователя
	TokenHash string    `json:"token_hash"` // SHA256 хеш текущего refresh token (hex)
	IssuedAt  time.Time `json:"issued_at"`  // время выдачи текущего токена
}

// Permission представляет именованное разрешение
type Permission struct {
	ID   string `json:"id"`   // UUID разрешения
	Name string `json:"name"` // уникальное имя, например "user:read"
}

// UserPermission связывает пользователя с разрешением
type UserPermission struct {
	UserID       string `json:"user_id"`
	PermissionID string `json:"permission_id"`
}
