// ABOUTME: Per-user key-value metadata store methods
// ABOUTME: One value per (user_id, meta_key); writes are upserts so the last write wins

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetUserMeta returns the value stored under key for the user.
// ok is false when no value exists.
func (s *SQLiteStore) GetUserMeta(ctx context.Context, userID int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT meta_value FROM user_meta WHERE user_id = ? AND meta_key = ?`,
		userID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying user meta: %w", err)
	}
	return value, true, nil
}

// SetUserMeta stores value under key for the user, replacing any previous value.
func (s *SQLiteStore) SetUserMeta(ctx context.Context, userID int64, key, value string) error {
	query := `
		INSERT INTO user_meta (user_id, meta_key, meta_value)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value
	`

	if _, err := s.db.ExecContext(ctx, query, userID, key, value); err != nil {
		return fmt.Errorf("setting user meta: %w", err)
	}

	s.logger.Debug("set user meta", "user_id", userID, "key", key)
	return nil
}

// DeleteUserMeta removes key for the user. Deleting a missing key succeeds.
func (s *SQLiteStore) DeleteUserMeta(ctx context.Context, userID int64, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM user_meta WHERE user_id = ? AND meta_key = ?`,
		userID, key,
	); err != nil {
		return fmt.Errorf("deleting user meta: %w", err)
	}
	return nil
}
