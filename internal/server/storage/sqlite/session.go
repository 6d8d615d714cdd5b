package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/shopkeeper/internal/models"
	"github.com/iudanet/shopkeeper/internal/server/storage"
)

// GetByUserID retrieves the refresh session for a user
func (s *Storage) GetByUserID(ctx context.Context, userID string) (*models.RefreshSession, error) {
	query := `
		SELECT user_id, token_hash, issued_at
		FROM refresh_sessions
		WHERE user_id = ?
	`

	session := &models.RefreshSession{}

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&session.UserID,
		&session.TokenHash,
		&session.IssuedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get refresh session: %w", translateErr(err))
	}

	return session, nil
}

// Upsert inserts the session row or overwrites all fields if one exists
func (s *Storage) Upsert(ctx context.Context, session *models.RefreshSession) error {
	query := `
		INSERT OR REPLACE INTO refresh_sessions (user_id, token_hash, issued_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.UserID,
		session.TokenHash,
		session.IssuedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert refresh session: %w", translateErr(err))
	}

	return nil
}

// CompareAndSwap atomically rotates the session conditioned on the stored
// hash. The WHERE clause is the linearization point: of two concurrent
// rotations presenting the same hash exactly one UPDATE matches a row.
func (s *Storage) CompareAndSwap(ctx context.Context, userID, expectedHash, newHash string, issuedAt time.Time) (bool, error) {
	query := `
		UPDATE refresh_sessions
		SET token_hash = ?, issued_at = ?
		WHERE user_id = ? AND token_hash = ?
	`

	result, err := s.db.ExecContext(ctx, query, newHash, issuedAt, userID, expectedHash)
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh session: %w", translateErr(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// Delete removes the user's refresh session; missing rows are not an error
func (s *Storage) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM refresh_sessions WHERE user_id = ?`

	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete refresh session: %w", translateErr(err))
	}

	return nil
}
