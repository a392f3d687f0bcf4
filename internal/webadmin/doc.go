// Package webadmin provides the web-based administration interface.
//
// # Overview
//
// The web admin provides a browser-based interface for:
//
//   - Users: list members and edit profiles
//   - Plugins: activate and deactivate registered plugins
//   - Members: a public directory rendered through display-name filters
//
// Every admin page runs the host's admin-init hook and then shows the
// notices plugins queued for it. Notice text is Markdown and is rendered
// with goldmark.
//
// # Authentication
//
// Users log in with a username and password (bcrypt). A successful login
// sets a JWT session cookie that auth.Middleware resolves on later
// requests. Routes then require a capability:
//
//   - read: dashboard, user list, own profile
//   - edit_users: other members' profiles
//   - manage_plugins: plugin screen and activation
//
// # Profile Editing
//
// The edit screen renders the display name field followed by whatever
// fields plugins contribute. Saving goes through host.Framework.SaveProfile,
// which fires the profile-saved hook.
//
// # CSRF Protection
//
// All form submissions require CSRF tokens:
//
//	<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
//
// The token is stored in a cookie scoped to /admin and compared with the
// form value on POST.
//
// # Usage
//
//	admin := webadmin.New(webadmin.Config{Host: fw, TokenGenerator: verifier})
//	admin.RegisterRoutes(fw)
package webadmin
