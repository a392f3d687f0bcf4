// ABOUTME: Role entity and store methods for authorization
// ABOUTME: Roles are assigned to users and grant capabilities in the auth package

package store

import (
	"context"
	"fmt"
	"time"
)

// RoleName represents a role that can be assigned
type RoleName string

const (
	// RoleFounder is the site's "Founder & CEO" administrator.
	RoleFounder RoleName = "founder"
	RoleAdmin   RoleName = "admin"
	RoleMember  RoleName = "member"
)

// ValidRoleNames lists all valid role names
var ValidRoleNames = []RoleName{
	RoleFounder,
	RoleAdmin,
	RoleMember,
}

// AddRole adds a role to a user. This operation is idempotent - adding an
// existing role succeeds silently.
func (s *SQLiteStore) AddRole(ctx context.Context, userID int64, role RoleName) error {
	query := `
		INSERT OR IGNORE INTO user_roles (user_id, role, created_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		userID,
		role,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("adding role: %w", err)
	}

	s.logger.Debug("added role", "user_id", userID, "role", role)
	return nil
}

// RemoveRole removes a role from a user. This operation is idempotent -
// removing a non-existent role succeeds silently.
func (s *SQLiteStore) RemoveRole(ctx context.Context, userID int64, role RoleName) error {
	query := `DELETE FROM user_roles WHERE user_id = ? AND role = ?`

	_, err := s.db.ExecContext(ctx, query, userID, role)
	if err != nil {
		return fmt.Errorf("removing role: %w", err)
	}

	s.logger.Debug("removed role", "user_id", userID, "role", role)
	return nil
}

// HasRole checks if a user has a specific role. Returns false for
// non-existent users (not an error).
func (s *SQLiteStore) HasRole(ctx context.Context, userID int64, role RoleName) (bool, error) {
	query := `SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, role).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}

	return count > 0, nil
}

// ListRoles returns all roles assigned to a user. Returns an empty slice
// if the user has no roles.
func (s *SQLiteStore) ListRoles(ctx context.Context, userID int64) ([]RoleName, error) {
	query := `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []RoleName{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, RoleName(role))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}

	return roles, nil
}
