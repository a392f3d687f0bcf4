// ABOUTME: Capability tokens and the role-to-capability table
// ABOUTME: edit_users belongs to the founder alone

package auth

import "github.com/2389/coven-verified/internal/store"

// Capability is a permission token checked before privileged operations.
type Capability string

const (
	// CapEditUsers allows editing other members' profiles.
	CapEditUsers Capability = "edit_users"
	// CapManagePlugins allows activating and deactivating plugins.
	CapManagePlugins Capability = "manage_plugins"
	// CapRead allows reading the admin dashboard.
	CapRead Capability = "read"
)

var roleCapabilities = map[store.RoleName][]Capability{
	store.RoleFounder: {CapEditUsers, CapManagePlugins, CapRead},
	store.RoleAdmin:   {CapManagePlugins, CapRead},
	store.RoleMember:  {CapRead},
}

// RolesCan reports whether any of the roles grants the capability.
// Unknown role names grant nothing.
func RolesCan(roles []string, c Capability) bool {
	for _, r := range roles {
		for _, granted := range roleCapabilities[store.RoleName(r)] {
			if granted == c {
				return true
			}
		}
	}
	return false
}
