// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	nextID  int64
	users   map[int64]*User             // keyed by user ID
	meta    map[int64]map[string]string // user ID -> key -> value
	roles   map[int64]map[RoleName]bool // user ID -> role set
	plugins map[string]*PluginRecord    // keyed by basename
	audit   []AuditEntry

	metaWrites int // SetUserMeta and DeleteUserMeta calls
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:   make(map[int64]*User),
		meta:    make(map[int64]map[string]string),
		roles:   make(map[int64]map[RoleName]bool),
		plugins: make(map[string]*PluginRecord),
	}
}

// CreateUser stores a new user. A zero ID is assigned the next free ID.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == user.Username {
			return ErrUsernameExists
		}
	}

	if user.ID == 0 {
		m.nextID++
		user.ID = m.nextID
	} else if user.ID > m.nextID {
		m.nextID = user.ID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	u := *user
	m.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsers returns users ordered by ID.
func (m *MockStore) ListUsers(ctx context.Context, limit int) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// CountUsers returns the number of users.
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// UpdateUserDisplayName changes a user's display name.
func (m *MockStore) UpdateUserDisplayName(ctx context.Context, id int64, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.DisplayName = displayName
	return nil
}

// DeleteUser removes a user with its metadata and roles.
func (m *MockStore) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	delete(m.meta, id)
	delete(m.roles, id)
	return nil
}

// GetUserMeta returns the value stored under key for the user.
func (m *MockStore) GetUserMeta(ctx context.Context, userID int64, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.meta[userID][key]
	return v, ok, nil
}

// SetUserMeta stores value under key for the user.
func (m *MockStore) SetUserMeta(ctx context.Context, userID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.meta[userID] == nil {
		m.meta[userID] = make(map[string]string)
	}
	m.meta[userID][key] = value
	m.metaWrites++
	return nil
}

// DeleteUserMeta removes key for the user.
func (m *MockStore) DeleteUserMeta(ctx context.Context, userID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.meta[userID], key)
	m.metaWrites++
	return nil
}

// MetaWrites returns how many metadata writes the store has received.
func (m *MockStore) MetaWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metaWrites
}

// AddRole adds a role to a user.
func (m *MockStore) AddRole(ctx context.Context, userID int64, role RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roles[userID] == nil {
		m.roles[userID] = make(map[RoleName]bool)
	}
	m.roles[userID][role] = true
	return nil
}

// RemoveRole removes a role from a user.
func (m *MockStore) RemoveRole(ctx context.Context, userID int64, role RoleName) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.roles[userID], role)
	return nil
}

// HasRole checks if a user has a specific role.
func (m *MockStore) HasRole(ctx context.Context, userID int64, role RoleName) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.roles[userID][role], nil
}

// ListRoles returns all roles assigned to a user, sorted by name.
func (m *MockStore) ListRoles(ctx context.Context, userID int64) ([]RoleName, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roles := []RoleName{}
	for r := range m.roles[userID] {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles, nil
}

// SetPluginActive records the activation state of a plugin.
func (m *MockStore) SetPluginActive(ctx context.Context, basename string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.plugins[basename] = &PluginRecord{
		Basename:  basename,
		Active:    active,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// GetPlugin returns the recorded state of a plugin.
func (m *MockStore) GetPlugin(ctx context.Context, basename string) (*PluginRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[basename]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPlugins returns all recorded plugins ordered by basename.
func (m *MockStore) ListPlugins(ctx context.Context) ([]*PluginRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*PluginRecord, 0, len(m.plugins))
	for _, p := range m.plugins {
		cp := *p
		plugins = append(plugins, &cp)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Basename < plugins[j].Basename })
	return plugins, nil
}

// AppendAuditLog appends a new entry to the audit log.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns entries matching the filter, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.ActorUserID != nil && e.ActorUserID != *f.ActorUserID {
			continue
		}
		if f.TargetUserID != nil && e.TargetUserID != *f.TargetUserID {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })

	if limit := normalizeAuditLimit(f.Limit); len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}
