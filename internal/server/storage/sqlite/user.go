package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/shopkeeper/internal/models"
	"github.com/iudanet/shopkeeper/internal/server/storage"
)

// FindOAuthAccount looks up the link record for a provider profile
func (s *Storage) FindOAuthAccount(ctx context.Context, provider models.Provider, profileID string) (*models.OAuthAccount, error) {
	query := `
		SELECT user_id, provider, provider_profile_id, oauth_user_id
		FROM oauth_accounts
		WHERE provider = ? AND provider_profile_id = ?
	`

	account := &models.OAuthAccount{}

	err := s.db.QueryRowContext(ctx, query, provider, profileID).Scan(
		&account.UserID,
		&account.Provider,
		&account.ProviderProfileID,
		&account.OAuthUserID,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrOAuthAccountNotFound
		}
		return nil, fmt.Errorf("failed to find oauth account: %w", translateErr(err))
	}

	return account, nil
}

// CreateUserWithOAuth creates the user, oauth link and permission grants in
// one transaction. A lost race against a concurrent identical registration
// resolves by re-reading the winner's rows, so every caller observes the
// same user.
func (s *Storage) CreateUserWithOAuth(ctx context.Context, user *models.User, account *models.OAuthAccount, permissionIDs []string) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", translateErr(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, avatar_url, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?)
	`, user.ID, user.Email, user.Name, user.AvatarURL, user.CreatedAt, user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, "users.email") {
			// Либо конкурирующая регистрация той же identity уже победила,
			// либо email занят пользователем другого провайдера
			_ = tx.Rollback()
			return s.resolveEmailConflict(ctx, account)
		}
		return nil, fmt.Errorf("failed to insert user: %w", translateErr(err))
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO oauth_accounts (user_id, provider, provider_profile_id, oauth_user_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (provider, provider_profile_id) DO NOTHING
	`, account.UserID, account.Provider, account.ProviderProfileID, account.OAuthUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert oauth account: %w", translateErr(err))
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted == 0 {
		// Запись уже создана конкурирующим запросом - возвращаем его пользователя
		_ = tx.Rollback()
		return s.findLinkedUser(ctx, account.Provider, account.ProviderProfileID)
	}

	for _, permissionID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_permissions (user_id, permission_id)
			VALUES (?, ?)
		`, user.ID, permissionID); err != nil {
			return nil, fmt.Errorf("failed to grant permission: %w", translateErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user creation: %w", translateErr(err))
	}

	return user, nil
}

// resolveEmailConflict различает сошедшуюся конкурентную регистрацию
// (link уже существует) и настоящий конфликт email
func (s *Storage) resolveEmailConflict(ctx context.Context, account *models.OAuthAccount) (*models.User, error) {
	existing, err := s.findLinkedUser(ctx, account.Provider, account.ProviderProfileID)
	if err != nil {
		if errors.Is(err, storage.ErrOAuthAccountNotFound) {
			return nil, storage.ErrEmailTaken
		}
		return nil, err
	}
	return existing, nil
}

// findLinkedUser возвращает пользователя, связанного с oauth identity
func (s *Storage) findLinkedUser(ctx context.Context, provider models.Provider, profileID string) (*models.User, error) {
	account, err := s.FindOAuthAccount(ctx, provider, profileID)
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, account.UserID)
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, email, name, avatar_url, COALESCE(password_hash, ''), created_at, updated_at
		FROM users
		WHERE id = ?
	`

	user := &models.User{}

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", translateErr(err))
	}

	return user, nil
}
