// ABOUTME: Admin profile control rendering and persisting the verified checkbox
// ABOUTME: Capability-gated; optional audit trail of verification changes

package profile

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/host"
	"github.com/2389/coven-verified/internal/i18n"
	"github.com/2389/coven-verified/internal/store"
	"github.com/2389/coven-verified/internal/verification"
)

// FieldName is the form field carrying the checkbox.
const FieldName = "coven_verified"

// AuditLogger records administrative actions.
type AuditLogger interface {
	AppendAuditLog(ctx context.Context, entry *store.AuditEntry) error
}

var toggleTmpl = template.Must(template.New("toggle").Parse(
	`<h2>{{.Heading}}</h2>` +
		`<table class="form-table" role="presentation"><tr>` +
		`<th><label for="{{.Field}}">{{.Label}}</label></th>` +
		`<td><input type="checkbox" name="{{.Field}}" id="{{.Field}}" value="1"{{if .Checked}} checked{{end}}>` +
		` <span class="description">{{.Description}}</span></td>` +
		`</tr></table>`))

type toggleData struct {
	Heading     string
	Label       string
	Description string
	Field       string
	Checked     bool
}

// Option configures a Control.
type Option func(*Control)

// WithAuditLog records verify_user and unverify_user entries when a save
// changes a member's flag.
func WithAuditLog(a AuditLogger) Option {
	return func(c *Control) { c.audit = a }
}

// Control renders and saves the verified toggle.
type Control struct {
	flags  *verification.Store
	caps   host.Capabilities
	tr     i18n.Translator
	audit  AuditLogger
	logger *slog.Logger
}

// NewControl creates a Control.
func NewControl(flags *verification.Store, caps host.Capabilities, tr i18n.Translator, opts ...Option) *Control {
	if tr == nil {
		tr = i18n.Source()
	}
	c := &Control{
		flags:  flags,
		caps:   caps,
		tr:     tr,
		logger: slog.Default().With("component", "profile"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RenderToggle returns the checkbox markup for user. It returns empty markup
// when the acting user lacks edit_users.
func (c *Control) RenderToggle(ctx context.Context, user *store.User) (template.HTML, error) {
	if !c.caps.CurrentUserCan(ctx, auth.CapEditUsers) {
		return "", nil
	}

	verified, err := c.flags.Get(ctx, user.ID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = toggleTmpl.Execute(&buf, toggleData{
		Heading:     c.tr.T("Verified account"),
		Label:       c.tr.T("Verified"),
		Description: c.tr.T("Show a verified badge next to this member's name."),
		Field:       FieldName,
		Checked:     verified,
	})
	if err != nil {
		return "", fmt.Errorf("rendering verified toggle: %w", err)
	}
	return template.HTML(buf.String()), nil //nolint:gosec // produced by html/template
}

// OnProfileSave stores the submitted checkbox state for user. A missing or
// unchecked box stores false.
func (c *Control) OnProfileSave(ctx context.Context, user *store.User, form url.Values) error {
	if !c.caps.CurrentUserCan(ctx, auth.CapEditUsers) {
		return nil
	}

	verified := verification.ParseBool(form.Get(FieldName))

	var previous bool
	if c.audit != nil {
		prev, err := c.flags.Get(ctx, user.ID)
		if err != nil {
			return err
		}
		previous = prev
	}

	if err := c.flags.Set(ctx, user.ID, verified); err != nil {
		return err
	}

	if c.audit != nil && previous != verified {
		c.record(ctx, user, verified)
	}
	return nil
}

func (c *Control) record(ctx context.Context, user *store.User, verified bool) {
	action := store.AuditUnverifyUser
	if verified {
		action = store.AuditVerifyUser
	}
	var actorID int64
	if a := auth.FromContext(ctx); a != nil {
		actorID = a.UserID
	}

	entry := &store.AuditEntry{
		ActorUserID:  actorID,
		Action:       action,
		TargetUserID: user.ID,
		Detail:       map[string]any{"username": user.Username},
	}
	if err := c.audit.AppendAuditLog(ctx, entry); err != nil {
		c.logger.Error("audit log append failed", "action", action, "target", user.ID, "error", err)
	}
}
