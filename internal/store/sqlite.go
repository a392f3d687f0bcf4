// ABOUTME: SQLite implementation of the Store interfaces
// ABOUTME: Opens the database with either the modernc or mattn driver and creates the schema

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, needs cgo
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path using the
// pure-Go driver. The schema is automatically created if it doesn't exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(DriverModernc, path)
}

// Open creates a SQLite store using the named driver.
// Parent directories are created if needed.
func Open(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	memory := path == ":memory:"
	if !memory {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn, err := buildDSN(driver, path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would see its own empty database
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// buildDSN returns a connection string that enables foreign keys and WAL
// on every pooled connection. The two drivers spell pragmas differently.
func buildDSN(driver, path string) (string, error) {
	memory := path == ":memory:"
	var params []string

	switch driver {
	case DriverModernc:
		params = append(params, "_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)")
		if !memory {
			params = append(params, "_pragma=journal_mode(WAL)")
		}
	case DriverCGO:
		params = append(params, "_foreign_keys=on", "_busy_timeout=5000")
		if !memory {
			params = append(params, "_journal_mode=WAL")
		}
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	return "file:" + path + "?" + strings.Join(params, "&"), nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			display_name  TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_meta (
			user_id    INTEGER NOT NULL,
			meta_key   TEXT NOT NULL,
			meta_value TEXT NOT NULL,

			PRIMARY KEY (user_id, meta_key),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_user_meta_key ON user_meta(meta_key);

		CREATE TABLE IF NOT EXISTS user_roles (
			user_id    INTEGER NOT NULL,
			role       TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (user_id, role),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			CHECK (role IN ('founder', 'admin', 'member'))
		);

		CREATE TABLE IF NOT EXISTS plugins (
			basename   TEXT PRIMARY KEY,
			active     INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id       TEXT PRIMARY KEY,
			actor_user_id  INTEGER NOT NULL,
			action         TEXT NOT NULL,
			target_user_id INTEGER NOT NULL,
			ts             TEXT NOT NULL,
			detail_json    TEXT,

			CHECK (action IN ('verify_user', 'unverify_user'))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target_user_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// Both drivers return "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
