package storage

import (
	"context"
	"time"

	"github.com/iudanet/shopkeeper/internal/models"
)

// SessionStorage defines interface for refresh session persistence.
// Each user owns at most one session row; rotation replaces it in place.
type SessionStorage interface {
	// GetByUserID retrieves the refresh session for a user.
	// Returns ErrSessionNotFound if the user has no session.
	GetByUserID(ctx context.Context, userID string) (*models.RefreshSession, error)

	// Upsert inserts the session row or overwrites all fields if one exists
	Upsert(ctx context.Context, session *models.RefreshSession) error

	// CompareAndSwap atomically replaces the session's hash and timestamp,
	// conditioned on the stored hash still matching expectedHash. Returns
	// false without modifying state when the hash has already moved on.
	CompareAndSwap(ctx context.Context, userID, expectedHash, newHash string, issuedAt time.Time) (bool, error)

	// Delete removes the user's refresh session. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, userID string) error
}
