// ABOUTME: Store interfaces and data types for the site host persistence
// ABOUTME: Defines User, Role, PluginRecord and the Store composite interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// User is a member account of the site.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string // bcrypt hash, empty for members without admin login
	CreatedAt    time.Time
}

// PluginRecord tracks whether a plugin is active.
type PluginRecord struct {
	Basename  string
	Active    bool
	UpdatedAt time.Time
}

// UserStore defines member account persistence
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, limit int) ([]*User, error)
	CountUsers(ctx context.Context) (int, error)
	UpdateUserDisplayName(ctx context.Context, id int64, displayName string) error
	DeleteUser(ctx context.Context, id int64) error
}

// MetaStore defines generic per-user key-value metadata.
// A missing key is reported with ok=false, not an error.
type MetaStore interface {
	GetUserMeta(ctx context.Context, userID int64, key string) (value string, ok bool, err error)
	SetUserMeta(ctx context.Context, userID int64, key, value string) error
	DeleteUserMeta(ctx context.Context, userID int64, key string) error
}

// RoleStore defines role assignment persistence
type RoleStore interface {
	AddRole(ctx context.Context, userID int64, role RoleName) error
	RemoveRole(ctx context.Context, userID int64, role RoleName) error
	HasRole(ctx context.Context, userID int64, role RoleName) (bool, error)
	ListRoles(ctx context.Context, userID int64) ([]RoleName, error)
}

// PluginStore defines plugin activation persistence
type PluginStore interface {
	SetPluginActive(ctx context.Context, basename string, active bool) error
	GetPlugin(ctx context.Context, basename string) (*PluginRecord, error)
	ListPlugins(ctx context.Context) ([]*PluginRecord, error)
}

// AuditStore defines the administrative audit log
type AuditStore interface {
	AppendAuditLog(ctx context.Context, entry *AuditEntry) error
	ListAuditLog(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// Store combines every store interface.
type Store interface {
	UserStore
	MetaStore
	RoleStore
	PluginStore
	AuditStore

	// Close releases any resources held by the store
	Close() error
}
