// ABOUTME: Admin web UI for coven-verified: login, users, profiles, plugins
// ABOUTME: Also serves the public member directory through the display-name filter

package webadmin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/host"
	"github.com/2389/coven-verified/internal/store"
	"github.com/2389/coven-verified/internal/throttle"
)

const (
	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "coven_admin_csrf"

	// DefaultSessionDuration is how long sessions last when unset
	DefaultSessionDuration = 24 * time.Hour

	// directoryLimit caps the member directory and user list
	directoryLimit = 500
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const csrfContextKey contextKey = "csrf_token"

// Router is where admin routes are registered. Both *http.ServeMux and
// *host.Framework satisfy it.
type Router interface {
	Handle(pattern string, h http.Handler)
}

// TokenGenerator issues session tokens.
type TokenGenerator interface {
	Generate(userID int64, expiresIn time.Duration) (string, error)
}

// Config holds admin UI dependencies
type Config struct {
	Host           *host.Framework
	TokenGenerator TokenGenerator
	// SessionDuration is the lifetime of login sessions
	SessionDuration time.Duration
	// LoginLimiter, when set, blocks usernames after repeated failed logins
	LoginLimiter *throttle.Limiter
}

// Admin handles admin UI routes and authentication
type Admin struct {
	host      *host.Framework
	store     store.Store
	tokens    TokenGenerator
	ttl       time.Duration
	limiter   *throttle.Limiter
	templates map[string]*template.Template
	logger    *slog.Logger
}

// New creates a new Admin handler
func New(cfg Config) *Admin {
	ttl := cfg.SessionDuration
	if ttl <= 0 {
		ttl = DefaultSessionDuration
	}
	return &Admin{
		host:      cfg.Host,
		store:     cfg.Host.Store(),
		tokens:    cfg.TokenGenerator,
		ttl:       ttl,
		limiter:   cfg.LoginLimiter,
		templates: parseTemplates(),
		logger:    slog.Default().With("component", "admin"),
	}
}

// RegisterRoutes registers all admin routes. Requests must already have
// passed through auth.Middleware.
func (a *Admin) RegisterRoutes(r Router) {
	// Public routes (no auth required)
	r.Handle("GET /admin/login", http.HandlerFunc(a.handleLoginPage))
	r.Handle("POST /admin/login", http.HandlerFunc(a.handleLogin))
	r.Handle("GET /members", http.HandlerFunc(a.handleMembers))

	// Protected routes (auth required)
	r.Handle("GET /admin/{$}", a.requireCap(auth.CapRead, a.handleDashboard))
	r.Handle("GET /admin", a.requireCap(auth.CapRead, a.handleDashboard))
	r.Handle("POST /admin/logout", a.requireCap(auth.CapRead, a.handleLogout))

	// Users and profiles; editing others is checked per request
	r.Handle("GET /admin/users", a.requireCap(auth.CapRead, a.handleUsers))
	r.Handle("GET /admin/users/{id}", a.requireCap(auth.CapRead, a.handleUserEdit))
	r.Handle("POST /admin/users/{id}", a.requireCap(auth.CapRead, a.handleUserSave))

	// Plugin management
	r.Handle("GET /admin/plugins", a.requireCap(auth.CapManagePlugins, a.handlePlugins))
	managePlugins := auth.RequireCapability(auth.CapManagePlugins)
	r.Handle("POST /admin/plugins/activate", managePlugins(http.HandlerFunc(a.handlePluginActivate)))
	r.Handle("POST /admin/plugins/deactivate", managePlugins(http.HandlerFunc(a.handlePluginDeactivate)))

	a.logger.Info("admin routes registered")
}

// requireCap wraps a handler to require a logged-in user holding c.
// Anonymous users are sent to the login page.
func (a *Admin) requireCap(c auth.Capability, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := auth.FromContext(r.Context())
		if authCtx == nil {
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}
		if !authCtx.Can(c) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// getCSRFToken retrieves the CSRF token from the request context
func getCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (a *Admin) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	// Try to get existing token from cookie
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	// Generate new token
	token, err := generateSecureToken(32)
	if err != nil {
		a.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/admin",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

// validateCSRF checks the CSRF token from form against cookie
func (a *Admin) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		formToken = r.Header.Get("X-CSRF-Token")
	}

	return formToken != "" && formToken == cookie.Value
}

// createSession issues a session token for the user and sets the cookie
func (a *Admin) createSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	token, err := a.tokens.Generate(userID, a.ttl)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.ttl),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// page builds the layout data for an admin page, running admin-init and
// collecting notices.
func (a *Admin) page(r *http.Request, title string) layoutData {
	notices, err := a.host.AdminPage(r.Context())
	if err != nil {
		a.logger.Error("admin init failed", "error", err)
	}
	return layoutData{
		Title:     title,
		Auth:      auth.FromContext(r.Context()),
		CSRFToken: getCSRFToken(r),
		Notices:   a.renderNotices(notices),
	}
}

// handleLoginPage renders the login page
func (a *Admin) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to dashboard
	if auth.FromContext(r.Context()) != nil {
		http.Redirect(w, r, "/admin/", http.StatusSeeOther)
		return
	}

	r, csrfToken := a.ensureCSRFToken(w, r)
	a.renderLogin(w, r, http.StatusOK, "", csrfToken)
}

func (a *Admin) renderLogin(w http.ResponseWriter, r *http.Request, status int, errorMsg, csrfToken string) {
	a.render(w, status, "login.html", layoutData{Title: "Log in", CSRFToken: csrfToken, Error: errorMsg})
}

// handleLogin processes login form submission
func (a *Admin) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLogin(w, r, http.StatusBadRequest, "Invalid form data", csrfToken)
		return
	}

	if !a.validateCSRF(r) {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLogin(w, r, http.StatusForbidden, "Invalid request, please try again", csrfToken)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLogin(w, r, http.StatusBadRequest, "Username and password required", csrfToken)
		return
	}

	limitKey := strings.ToLower(username)
	if a.limiter != nil && !a.limiter.Allowed(limitKey) {
		a.logger.Warn("admin login throttled", "username", username)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLogin(w, r, http.StatusTooManyRequests, "Too many failed attempts, try again later", csrfToken)
		return
	}

	user, err := a.store.GetUserByUsername(r.Context(), username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.logger.Error("failed to get user", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLogin(w, r, http.StatusInternalServerError, "An error occurred", csrfToken)
		return
	}

	// Unknown users still pay for a bcrypt comparison
	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		a.logger.Info("admin login failed", "username", username)
		if a.limiter != nil {
			a.limiter.Fail(limitKey)
		}
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLogin(w, r, http.StatusUnauthorized, "Invalid username or password", csrfToken)
		return
	}

	if err := a.createSession(w, r, user.ID); err != nil {
		a.logger.Error("failed to create session", "error", err)
		_, csrfToken := a.ensureCSRFToken(w, r)
		a.renderLogin(w, r, http.StatusInternalServerError, "An error occurred", csrfToken)
		return
	}

	if a.limiter != nil {
		a.limiter.Reset(limitKey)
	}
	a.logger.Info("admin login successful", "username", username)
	http.Redirect(w, r, "/admin/", http.StatusSeeOther)
}

// handleLogout logs out the current user
func (a *Admin) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err == nil {
		// Don't block logout if invalid
		if !a.validateCSRF(r) {
			a.logger.Warn("logout request with invalid CSRF token")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// handleDashboard renders the main dashboard
func (a *Admin) handleDashboard(w http.ResponseWriter, r *http.Request) {
	r, _ = a.ensureCSRFToken(w, r)
	data := a.page(r, "Dashboard")
	ctx := r.Context()

	count, err := a.store.CountUsers(ctx)
	if err != nil {
		a.logger.Error("failed to count users", "error", err)
	}
	plugins, err := a.host.Plugins(ctx)
	if err != nil {
		a.logger.Error("failed to list plugins", "error", err)
	}
	dash := dashboardData{Users: count, Plugins: plugins}

	if data.Auth.Can(auth.CapEditUsers) {
		dash.Audit, err = a.store.ListAuditLog(ctx, store.AuditFilter{Limit: 10})
		if err != nil {
			a.logger.Error("failed to list audit log", "error", err)
		}
	}

	data.Content = dash
	a.render(w, http.StatusOK, "dashboard.html", data)
}

// handleUsers lists members with their rendered names
func (a *Admin) handleUsers(w http.ResponseWriter, r *http.Request) {
	r, _ = a.ensureCSRFToken(w, r)
	data := a.page(r, "Users")
	ctx := r.Context()

	users, err := a.store.ListUsers(ctx, directoryLimit)
	if err != nil {
		a.logger.Error("failed to list users", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, userRow{
			ID:       u.ID,
			Username: u.Username,
			Name:     template.HTML(a.host.DisplayName(ctx, u)), //nolint:gosec // filtered display names are trusted markup
			Editable: canEdit(data.Auth, u.ID),
		})
	}
	data.Content = rows
	a.render(w, http.StatusOK, "users.html", data)
}

func canEdit(a *auth.AuthContext, userID int64) bool {
	return a != nil && (a.UserID == userID || a.Can(auth.CapEditUsers))
}

// loadEditableUser resolves {id} and checks the actor may edit it.
// It writes the error response itself and returns nil on failure.
func (a *Admin) loadEditableUser(w http.ResponseWriter, r *http.Request) *store.User {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return nil
	}
	if !canEdit(auth.FromContext(r.Context()), id) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil
	}

	user, err := a.store.GetUser(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return nil
	}
	if err != nil {
		a.logger.Error("failed to get user", "user_id", id, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return nil
	}
	return user
}

// handleUserEdit renders a user's profile edit screen
func (a *Admin) handleUserEdit(w http.ResponseWriter, r *http.Request) {
	user := a.loadEditableUser(w, r)
	if user == nil {
		return
	}
	a.renderUserEdit(w, r, http.StatusOK, user, r.URL.Query().Get("updated") == "1", "")
}

func (a *Admin) renderUserEdit(w http.ResponseWriter, r *http.Request, status int, user *store.User, updated bool, errorMsg string) {
	r, _ = a.ensureCSRFToken(w, r)
	data := a.page(r, "Edit "+user.Username)

	fields, err := a.host.ProfileFields(r.Context(), user)
	if err != nil {
		// A form missing plugin fields would clear their values on save.
		a.logger.Error("failed to render profile fields", "user_id", user.ID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	data.Content = userEditData{User: user, Fields: fields, Updated: updated, Error: errorMsg}
	a.render(w, status, "user_edit.html", data)
}

// handleUserSave applies a profile edit
func (a *Admin) handleUserSave(w http.ResponseWriter, r *http.Request) {
	user := a.loadEditableUser(w, r)
	if user == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		a.renderUserEdit(w, r, http.StatusBadRequest, user, false, "Invalid form data")
		return
	}
	if !a.validateCSRF(r) {
		a.renderUserEdit(w, r, http.StatusForbidden, user, false, "Invalid request, please try again")
		return
	}

	err := a.host.SaveProfile(r.Context(), user.ID, r.PostForm)
	switch {
	case errors.Is(err, host.ErrForbidden), errors.Is(err, host.ErrUnauthenticated):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case err != nil:
		a.logger.Error("failed to save profile", "user_id", user.ID, "error", err)
		if fresh, gerr := a.store.GetUser(r.Context(), user.ID); gerr == nil {
			user = fresh
		}
		a.renderUserEdit(w, r, http.StatusInternalServerError, user, false, "An error occurred while saving")
		return
	}

	http.Redirect(w, r, "/admin/users/"+strconv.FormatInt(user.ID, 10)+"?updated=1", http.StatusSeeOther)
}

// handlePlugins lists registered plugins
func (a *Admin) handlePlugins(w http.ResponseWriter, r *http.Request) {
	r, _ = a.ensureCSRFToken(w, r)
	data := a.page(r, "Plugins")

	plugins, err := a.host.Plugins(r.Context())
	if err != nil {
		a.logger.Error("failed to list plugins", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	data.Content = plugins
	a.render(w, http.StatusOK, "plugins.html", data)
}

func (a *Admin) handlePluginActivate(w http.ResponseWriter, r *http.Request) {
	a.changePlugin(w, r, a.host.ActivatePlugin)
}

func (a *Admin) handlePluginDeactivate(w http.ResponseWriter, r *http.Request) {
	a.changePlugin(w, r, a.host.DeactivatePlugin)
}

func (a *Admin) changePlugin(w http.ResponseWriter, r *http.Request, change func(context.Context, string) error) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid CSRF token", http.StatusForbidden)
		return
	}

	basename := r.FormValue("plugin")
	err := change(r.Context(), basename)
	switch {
	case errors.Is(err, host.ErrPluginNotRegistered):
		http.Error(w, "Unknown plugin", http.StatusNotFound)
		return
	case err != nil:
		a.logger.Error("plugin state change failed", "plugin", basename, "error", err)
		http.Error(w, "Plugin state change failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/admin/plugins", http.StatusSeeOther)
}

// handleMembers renders the public member directory
func (a *Admin) handleMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := a.store.ListUsers(ctx, directoryLimit)
	if err != nil {
		a.logger.Error("failed to list users", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	names := make([]template.HTML, 0, len(users))
	for _, u := range users {
		names = append(names, template.HTML(a.host.DisplayName(ctx, u))) //nolint:gosec // filtered display names are trusted markup
	}
	a.render(w, http.StatusOK, "members.html", layoutData{
		Title:     "Members",
		Auth:      auth.FromContext(ctx),
		CSRFToken: getCSRFToken(r),
		Content:   names,
	})
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
