// ABOUTME: Template rendering functions for admin UI
// ABOUTME: Loads templates from embedded filesystem and renders them inside the layout

package webadmin

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/host"
	"github.com/2389/coven-verified/internal/store"
)

var pages = []string{"login.html", "dashboard.html", "users.html", "user_edit.html", "plugins.html", "members.html"}

// parseTemplates parses each page together with the layout.
func parseTemplates() map[string]*template.Template {
	out := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		out[page] = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/"+page))
	}
	return out
}

// Template data types
type noticeView struct {
	Level string
	HTML  template.HTML
}

type layoutData struct {
	Title            string
	Auth             *auth.AuthContext
	CanManagePlugins bool
	CSRFToken        string
	Notices          []noticeView
	Error            string
	Content          any
}

type dashboardData struct {
	Users   int
	Plugins []host.PluginStatus
	Audit   []store.AuditEntry
}

type userRow struct {
	ID       int64
	Username string
	Name     template.HTML
	Editable bool
}

type userEditData struct {
	User    *store.User
	Fields  template.HTML
	Updated bool
	Error   string
}

// renderNotices converts Markdown notices to HTML. Raw HTML inside the
// Markdown is not passed through.
func (a *Admin) renderNotices(notices []host.Notice) []noticeView {
	views := make([]noticeView, 0, len(notices))
	for _, n := range notices {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(n.Text), &buf); err != nil {
			a.logger.Error("failed to render notice", "error", err)
			continue
		}
		views = append(views, noticeView{
			Level: string(n.Level),
			HTML:  template.HTML(buf.String()), //nolint:gosec // goldmark escapes raw HTML by default
		})
	}
	return views
}

// render executes page inside the layout
func (a *Admin) render(w http.ResponseWriter, status int, page string, data layoutData) {
	tmpl, ok := a.templates[page]
	if !ok {
		a.logger.Error("unknown template", "page", page)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	data.CanManagePlugins = data.Auth.Can(auth.CapManagePlugins)

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		a.logger.Error("failed to render page", "page", page, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
