package storage

import (
	"context"

	"github.com/iudanet/shopkeeper/internal/models"
)

// PermissionStorage defines interface for permission definitions and grants
type PermissionStorage interface {
	// GetPermissionsByName resolves permission names to their records.
	// Names absent from the store are silently omitted from the result;
	// the caller decides whether an incomplete set is fatal.
	GetPermissionsByName(ctx context.Context, names []string) ([]models.Permission, error)

	// GetUserPermissions returns all permissions granted to the user.
	// Returns an empty slice if the user has no grants.
	GetUserPermissions(ctx context.Context, userID string) ([]models.Permission, error)
}
