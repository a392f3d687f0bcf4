// ABOUTME: Plugin activation state store methods
// ABOUTME: Remembers which plugins an administrator activated across restarts

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetPluginActive records the activation state of a plugin.
func (s *SQLiteStore) SetPluginActive(ctx context.Context, basename string, active bool) error {
	query := `
		INSERT INTO plugins (basename, active, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(basename) DO UPDATE SET active = excluded.active, updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, basename, active, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("setting plugin state: %w", err)
	}

	s.logger.Debug("set plugin state", "basename", basename, "active", active)
	return nil
}

// GetPlugin returns the recorded state of a plugin, or ErrNotFound if it
// was never activated.
func (s *SQLiteStore) GetPlugin(ctx context.Context, basename string) (*PluginRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT basename, active, updated_at FROM plugins WHERE basename = ?`, basename)

	p, err := scanPlugin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying plugin: %w", err)
	}
	return p, nil
}

// ListPlugins returns all recorded plugins ordered by basename
func (s *SQLiteStore) ListPlugins(ctx context.Context) ([]*PluginRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT basename, active, updated_at FROM plugins ORDER BY basename`)
	if err != nil {
		return nil, fmt.Errorf("querying plugins: %w", err)
	}
	defer rows.Close()

	plugins := []*PluginRecord{}
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plugin: %w", err)
		}
		plugins = append(plugins, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plugins: %w", err)
	}

	return plugins, nil
}

func scanPlugin(scanner interface{ Scan(dest ...any) error }) (*PluginRecord, error) {
	var p PluginRecord
	var updatedAt string
	if err := scanner.Scan(&p.Basename, &p.Active, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}
