// Package auth provides authentication and authorization for the site host.
//
// # Sessions
//
// Administrators log in with a username and password (bcrypt hashed). A
// successful login issues an HS256 JWT whose "sub" claim is the numeric
// user ID. The token travels in the session cookie, or in an
// "Authorization: Bearer" header for scripted access.
//
// # Capabilities
//
// Roles are stored per user (see store.RoleName) and map to capabilities:
//
//	founder - edit_users, manage_plugins, read
//	admin   - manage_plugins, read
//	member  - read
//
// edit_users is the capability to edit other members' profiles. It is held
// only by the founder, the site's "Founder & CEO".
//
// # Context
//
// Middleware resolves the session into an AuthContext attached to the
// request context. Anonymous requests carry no AuthContext:
//
//	authCtx := auth.FromContext(ctx) // nil when anonymous
//	if authCtx.Can(auth.CapEditUsers) { ... }
package auth
