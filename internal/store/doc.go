// Package store provides persistent storage for the site host using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with small,
// specialized interfaces:
//
//   - UserStore: Member accounts (numeric IDs, usernames, display names)
//   - MetaStore: Generic per-user key-value metadata
//   - RoleStore: Role assignments that grant capabilities
//   - PluginStore: Plugin activation state
//   - AuditStore: Append-only log of administrative actions
//
// SQLiteStore implements all interfaces in a single struct, and so does
// MockStore for unit tests.
//
// # Per-user metadata
//
// Metadata rows are addressed by (user_id, meta_key). The primary key on
// that pair guarantees at most one value per key per user; writes are
// upserts, so the last write wins. Deleting a user cascades to its
// metadata and roles.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Two drivers are supported:
//
//   - "sqlite": modernc.org/sqlite (pure Go, default)
//   - "sqlite3": github.com/mattn/go-sqlite3 (requires cgo)
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrUsernameExists: Username is already taken
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	store := store.NewMockStore()
//	// store implements all Store interfaces
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
