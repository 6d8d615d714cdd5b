package storage

import (
	"context"

	"github.com/iudanet/shopkeeper/internal/models"
)

// UserStorage defines interface for user and oauth account persistence
type UserStorage interface {
	// FindOAuthAccount looks up the link record for a provider profile.
	// Returns ErrOAuthAccountNotFound if no link exists.
	FindOAuthAccount(ctx context.Context, provider models.Provider, profileID string) (*models.OAuthAccount, error)

	// CreateUserWithOAuth creates the user, its oauth link and the default
	// permission grants as a single atomic unit. If a concurrent caller
	// already created the same link, the insert resolves by re-reading and
	// returning the existing linked user instead of erroring.
	// Returns ErrEmailTaken when the email belongs to a user linked to a
	// different oauth identity.
	CreateUserWithOAuth(ctx context.Context, user *models.User, account *models.OAuthAccount, permissionIDs []string) (*models.User, error)

	// GetUserByID retrieves user by ID.
	// Returns ErrUserNotFound if user doesn't exist.
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}
