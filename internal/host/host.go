// ABOUTME: Host interface and hook signatures exposed to plugins
// ABOUTME: Plugins depend on these extension points only, never on Framework

package host

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/url"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/i18n"
	"github.com/2389/coven-verified/internal/store"
)

// Errors
var (
	ErrPluginNotRegistered = errors.New("plugin not registered")
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrForbidden           = errors.New("forbidden")
)

// DefaultPriority is the priority of handlers registered through Host.
const DefaultPriority = 10

// ActionFunc handles a lifecycle event.
type ActionFunc func(ctx context.Context) error

// NoticeFunc contributes an admin notice. Returning ok=false shows nothing.
type NoticeFunc func(ctx context.Context) (notice Notice, ok bool)

// ProfileFieldsFunc renders extra fields on a user's profile edit screen.
type ProfileFieldsFunc func(ctx context.Context, user *store.User) (template.HTML, error)

// ProfileSavedFunc handles a submitted profile edit form.
type ProfileSavedFunc func(ctx context.Context, user *store.User, form url.Values) error

// DisplayNameFunc filters the rendered display name of a user. nameHTML is
// already escaped; the returned string is trusted markup.
type DisplayNameFunc func(ctx context.Context, user *store.User, nameHTML string) string

// NoticeLevel styles an admin notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is an admin banner. Text is Markdown.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// Meta is per-user key-value metadata.
type Meta interface {
	GetUserMeta(ctx context.Context, userID int64, key string) (value string, ok bool, err error)
	SetUserMeta(ctx context.Context, userID int64, key, value string) error
	DeleteUserMeta(ctx context.Context, userID int64, key string) error
}

// Capabilities answers permission questions about the acting user.
type Capabilities interface {
	CurrentUserCan(ctx context.Context, c auth.Capability) bool
}

// Host is the framework as seen by one plugin.
type Host interface {
	Meta
	Capabilities

	// Basename identifies the plugin this view belongs to.
	Basename() string

	OnReady(fn ActionFunc)
	OnAdminInit(fn ActionFunc)
	OnAdminNotices(fn NoticeFunc)
	OnProfileFields(fn ProfileFieldsFunc)
	OnProfileSaved(fn ProfileSavedFunc)
	OnRenderDisplayName(fn DisplayNameFunc)

	RegisterActivation(fn ActionFunc)
	RegisterDeactivation(fn ActionFunc)

	// FlushRoutes invalidates the compiled route table.
	FlushRoutes()
	DeactivatePlugin(ctx context.Context, basename string) error

	LoadTextDomain(domain string, fsys fs.FS, dir string) error
	Translator(domain string) i18n.Translator

	// AdminURL returns the absolute URL of an admin screen, e.g. AdminURL("plugins").
	AdminURL(path string) string
}
