// ABOUTME: Lifecycle controller wiring the verification control and badge into the host
// ABOUTME: Gated by a requirements check; flushes routes on activation

package plugin

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/2389/coven-verified/internal/badge"
	"github.com/2389/coven-verified/internal/host"
	"github.com/2389/coven-verified/internal/profile"
	"github.com/2389/coven-verified/internal/verification"
)

// Version is the plugin release.
const Version = "2.4.1"

// Basename identifies the plugin to the host.
const Basename = "coven-verified/verified.go"

// TextDomain is the name of the plugin's message catalogs.
const TextDomain = "verified"

// BadgeAsset is the badge image path relative to the plugin URL.
const BadgeAsset = "assets/verified.svg"

//go:embed languages/*.toml
var languages embed.FS

// Errors
var (
	ErrInvalidProperty    = errors.New("invalid property")
	ErrRequirementsNotMet = errors.New("plugin requirements not met")
)

// Requirement checks one precondition of the plugin. A nil error means met.
type Requirement func(ctx context.Context) error

// Options configures a Controller.
type Options struct {
	// URL is the public URL of the plugin directory.
	URL string
	// Path is the plugin directory on disk.
	Path string
	// Requirements are checked at initialization. None means always met.
	Requirements []Requirement
	// Audit, when set, records verification changes.
	Audit profile.AuditLogger
}

// State is a step of the controller lifecycle.
type State int

const (
	Uninitialized State = iota
	RequirementsChecked
	Active
	Disabled
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case RequirementsChecked:
		return "requirements_checked"
	case Active:
		return "active"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Properties is the typed view of the plugin's resolved settings and components.
type Properties struct {
	Version   string
	Basename  string
	URL       string
	Path      string
	Admin     *profile.Control
	Functions *badge.Renderer
}

// Controller runs the plugin lifecycle against a host.
type Controller struct {
	h      host.Host
	url    string
	path   string
	reqs   []Requirement
	audit  profile.AuditLogger
	logger *slog.Logger

	initOnce sync.Once
	initErr  error

	mu        sync.Mutex
	state     State
	err       error
	scheduled bool
	admin     *profile.Control
	functions *badge.Renderer
}

// New creates a controller for h.
func New(h host.Host, opts Options) *Controller {
	u := opts.URL
	if u != "" && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return &Controller{
		h:      h,
		url:    u,
		path:   opts.Path,
		reqs:   opts.Requirements,
		audit:  opts.Audit,
		logger: slog.Default().With("component", "plugin", "plugin", Basename),
	}
}

// Hooks subscribes the controller to the host lifecycle.
func (c *Controller) Hooks() {
	c.h.OnReady(c.Initialize)
	c.h.RegisterActivation(c.OnActivate)
	c.h.RegisterDeactivation(c.OnDeactivate)
}

// Initialize brings the plugin up once the host is ready. Later calls
// return the first call's result without doing anything.
func (c *Controller) Initialize(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize(ctx)
	})
	return c.initErr
}

func (c *Controller) initialize(ctx context.Context) error {
	if !c.CheckRequirements(ctx) {
		c.setState(Disabled)
		return nil
	}

	if err := c.h.LoadTextDomain(TextDomain, languages, "languages"); err != nil {
		c.logger.Warn("loading text domain", "domain", TextDomain, "error", err)
	}
	tr := c.h.Translator(TextDomain)

	var opts []profile.Option
	if c.audit != nil {
		opts = append(opts, profile.WithAuditLog(c.audit))
	}
	flags := verification.NewStore(c.h)
	admin := profile.NewControl(flags, c.h, tr, opts...)
	functions := badge.NewRenderer(flags, c.URL(BadgeAsset), tr.T("Verified"))

	c.h.OnProfileFields(admin.RenderToggle)
	c.h.OnProfileSaved(admin.OnProfileSave)
	c.h.OnRenderDisplayName(functions.Decorate)

	c.mu.Lock()
	c.admin = admin
	c.functions = functions
	c.state = Active
	c.mu.Unlock()

	c.logger.Info("plugin initialized", "version", Version)
	return nil
}

// CheckRequirements reports whether the plugin can run. The first failing
// check schedules the admin notice and self-deactivation; later calls only
// re-evaluate.
func (c *Controller) CheckRequirements(ctx context.Context) bool {
	err := c.MeetsRequirements(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Uninitialized {
		c.state = RequirementsChecked
	}
	if err == nil {
		return true
	}

	c.err = err
	if !c.scheduled {
		c.scheduled = true
		c.logger.Warn("requirements not met", "error", err)
		c.h.OnAdminNotices(c.notice)
		c.h.OnAdminInit(c.deactivateMe)
	}
	return false
}

// MeetsRequirements runs every configured Requirement.
func (c *Controller) MeetsRequirements(ctx context.Context) error {
	var errs []error
	for _, req := range c.reqs {
		if err := req(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrRequirementsNotMet, err)
	}
	return nil
}

func (c *Controller) notice(ctx context.Context) (host.Notice, bool) {
	return host.Notice{Level: host.NoticeError, Text: c.RequirementsNotMetNotice(ctx)}, true
}

func (c *Controller) deactivateMe(ctx context.Context) error {
	c.setState(Disabled)
	return c.h.DeactivatePlugin(ctx, Basename)
}

// RequirementsNotMetNotice returns the Markdown notice shown on admin pages
// when requirements fail.
func (c *Controller) RequirementsNotMetNotice(ctx context.Context) string {
	return c.h.Translator(TextDomain).Tf(
		"Verified Accounts is missing requirements and has been [deactivated](%s). Please make sure all requirements are available.",
		c.h.AdminURL("plugins"),
	)
}

// OnActivate runs when an administrator enables the plugin.
func (c *Controller) OnActivate(ctx context.Context) error {
	c.h.FlushRoutes()
	return nil
}

// OnDeactivate runs when the plugin is disabled. Nothing is cleaned up;
// stored flags survive so reactivation restores every badge.
func (c *Controller) OnDeactivate(ctx context.Context) error {
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the requirements failure, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Properties returns the resolved settings and live components. Admin and
// Functions are nil until the plugin is Active.
func (c *Controller) Properties() Properties {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Properties{
		Version:   Version,
		Basename:  Basename,
		URL:       c.url,
		Path:      c.path,
		Admin:     c.admin,
		Functions: c.functions,
	}
}

// Property looks up a property by name for templates and diagnostics.
func (c *Controller) Property(name string) (any, error) {
	p := c.Properties()
	switch name {
	case "version":
		return p.Version, nil
	case "basename":
		return p.Basename, nil
	case "url":
		return p.URL, nil
	case "path":
		return p.Path, nil
	case "admin":
		return p.Admin, nil
	case "functions":
		return p.Functions, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProperty, name)
	}
}

// Dir joins rel onto the plugin directory.
func (c *Controller) Dir(rel string) string {
	return filepath.Join(c.path, rel)
}

// URL joins rel onto the plugin URL.
func (c *Controller) URL(rel string) string {
	return c.url + strings.TrimLeft(rel, "/")
}

// Boot is the host.BootFunc for the plugin: each call wires a new Controller.
// onBoot, when set, receives the controller.
func Boot(opts Options, onBoot func(*Controller)) host.BootFunc {
	return func(h host.Host) error {
		c := New(h, opts)
		c.Hooks()
		if onBoot != nil {
			onBoot(c)
		}
		return nil
	}
}
