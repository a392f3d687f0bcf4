// ABOUTME: Framework is the concrete host: events, filters, capabilities and metadata
// ABOUTME: Emits ready/admin/profile/display-name events to plugin handlers on the bus

package host

import (
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/i18n"
	"github.com/2389/coven-verified/internal/store"
)

// FormDisplayName is the profile form field holding the new display name.
const FormDisplayName = "display_name"

// Options configures a Framework.
type Options struct {
	// BaseURL is the externally visible site root, e.g. "https://example.com".
	BaseURL string
	// Locale selects text-domain catalogs, e.g. "en" or "es-MX".
	Locale string
	Logger *slog.Logger
}

// Framework is the site host. Create with NewFramework.
type Framework struct {
	store   store.Store
	bus     *Bus
	texts   *i18n.Registry
	baseURL string
	locale  string
	logger  *slog.Logger

	mu      sync.Mutex
	plugins map[string]*pluginEntry
	order   []string
	ready   bool

	routeMu    sync.Mutex
	routes     []route
	mux        atomic.Pointer[http.ServeMux]
	flushCount atomic.Int64
}

// NewFramework creates a framework backed by s.
func NewFramework(s store.Store, opts Options) *Framework {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locale := opts.Locale
	if locale == "" {
		locale = "en"
	}
	return &Framework{
		store:   s,
		bus:     NewBus(),
		texts:   i18n.NewRegistry(),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		locale:  locale,
		logger:  logger.With("component", "host"),
		plugins: make(map[string]*pluginEntry),
	}
}

// Bus exposes the hook bus.
func (f *Framework) Bus() *Bus { return f.bus }

// Store exposes the backing store.
func (f *Framework) Store() store.Store { return f.store }

// Texts exposes the text-domain registry.
func (f *Framework) Texts() *i18n.Registry { return f.texts }

// Locale returns the configured locale.
func (f *Framework) Locale() string { return f.locale }

// AdminURL returns the absolute URL of an admin screen.
func (f *Framework) AdminURL(path string) string {
	return f.baseURL + "/admin/" + strings.TrimLeft(path, "/")
}

// Ready marks the framework ready and runs every ready handler. Handler
// errors are logged and joined; they never stop later handlers.
func (f *Framework) Ready(ctx context.Context) error {
	f.mu.Lock()
	f.ready = true
	f.mu.Unlock()

	return f.runActions(ctx, HookReady, "")
}

// IsReady reports whether Ready has run.
func (f *Framework) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *Framework) runActions(ctx context.Context, name, owner string) error {
	var errs []error
	for _, fn := range handlersOf[ActionFunc](f.bus, name, owner) {
		if err := fn(ctx); err != nil {
			f.logger.Error("hook failed", "hook", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AdminNotices evaluates the admin notice handlers.
func (f *Framework) AdminNotices(ctx context.Context) []Notice {
	return f.collectNotices(ctx, handlersOf[NoticeFunc](f.bus, HookAdminNotices, ""))
}

func (f *Framework) collectNotices(ctx context.Context, fns []NoticeFunc) []Notice {
	var notices []Notice
	for _, fn := range fns {
		if n, ok := fn(ctx); ok {
			notices = append(notices, n)
		}
	}
	return notices
}

// AdminPage runs the admin-init event for an admin page load and returns
// the notices to render on it. Notice handlers are captured before admin-init
// runs, so a plugin that unhooks itself during admin-init still shows its
// notice on this page.
func (f *Framework) AdminPage(ctx context.Context) ([]Notice, error) {
	noticeFns := handlersOf[NoticeFunc](f.bus, HookAdminNotices, "")
	err := f.runActions(ctx, HookAdminInit, "")
	return f.collectNotices(ctx, noticeFns), err
}

// ProfileFields renders the plugin-contributed fields of a profile screen.
func (f *Framework) ProfileFields(ctx context.Context, user *store.User) (template.HTML, error) {
	var b strings.Builder
	for _, fn := range handlersOf[ProfileFieldsFunc](f.bus, HookProfileField, "") {
		out, err := fn(ctx, user)
		if err != nil {
			return "", err
		}
		b.WriteString(string(out))
	}
	return template.HTML(b.String()), nil //nolint:gosec // handlers return trusted markup
}

// SaveProfile applies a profile edit for userID on behalf of the acting user,
// then fires the profile-saved event. Users may edit themselves; editing
// anyone else takes edit_users.
func (f *Framework) SaveProfile(ctx context.Context, userID int64, form url.Values) error {
	actor := auth.FromContext(ctx)
	if actor == nil {
		return ErrUnauthenticated
	}
	if actor.UserID != userID && !actor.Can(auth.CapEditUsers) {
		return ErrForbidden
	}

	if name := strings.TrimSpace(form.Get(FormDisplayName)); name != "" {
		if err := f.store.UpdateUserDisplayName(ctx, userID, name); err != nil {
			return fmt.Errorf("updating display name: %w", err)
		}
	}

	user, err := f.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	var errs []error
	for _, fn := range handlersOf[ProfileSavedFunc](f.bus, HookProfileSaved, "") {
		if err := fn(ctx, user, form); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisplayName renders the user's display name through the display-name filters.
func (f *Framework) DisplayName(ctx context.Context, user *store.User) string {
	name := html.EscapeString(user.DisplayName)
	for _, fn := range handlersOf[DisplayNameFunc](f.bus, HookDisplayName, "") {
		name = fn(ctx, user, name)
	}
	return name
}

// CurrentUserCan reports whether the request's user holds the capability.
func (f *Framework) CurrentUserCan(ctx context.Context, c auth.Capability) bool {
	return auth.FromContext(ctx).Can(c)
}

// GetUserMeta reads user metadata.
func (f *Framework) GetUserMeta(ctx context.Context, userID int64, key string) (string, bool, error) {
	return f.store.GetUserMeta(ctx, userID, key)
}

// SetUserMeta writes user metadata.
func (f *Framework) SetUserMeta(ctx context.Context, userID int64, key, value string) error {
	return f.store.SetUserMeta(ctx, userID, key, value)
}

// DeleteUserMeta removes user metadata.
func (f *Framework) DeleteUserMeta(ctx context.Context, userID int64, key string) error {
	return f.store.DeleteUserMeta(ctx, userID, key)
}
