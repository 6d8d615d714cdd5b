package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/iudanet/shopkeeper/internal/models"
)

// GetPermissionsByName resolves permission names to their records.
// Names absent from the store are omitted from the result.
func (s *Storage) GetPermissionsByName(ctx context.Context, names []string) ([]models.Permission, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT id, name
		FROM permissions
		WHERE name IN (%s)
		ORDER BY name
	`, placeholders)

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", translateErr(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var permissions []models.Permission

	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return permissions, nil
}

// GetUserPermissions returns all permissions granted to the user
func (s *Storage) GetUserPermissions(ctx context.Context, userID string) ([]models.Permission, error) {
	query := `
		SELECT p.id, p.name
		FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = ?
		ORDER BY p.name
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user permissions: %w", translateErr(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var permissions []models.Permission

	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return permissions, nil
}
