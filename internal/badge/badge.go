// ABOUTME: Badge renderer appending the verified image to display names
// ABOUTME: Escapes names and degrades to the plain name on lookup errors

// Package badge decorates rendered display names of verified users.
package badge

import (
	"context"
	"html"
	"log/slog"

	"github.com/2389/coven-verified/internal/store"
	"github.com/2389/coven-verified/internal/verification"
)

// Class is the CSS class on the badge image.
const Class = "coven-verified-badge"

// Size is the rendered badge width and height in pixels.
const Size = "14"

// Renderer appends the badge to names of verified users.
type Renderer struct {
	flags    *verification.Store
	fragment string
	logger   *slog.Logger
}

// NewRenderer builds a renderer whose badge points at badgeURL with altText.
func NewRenderer(flags *verification.Store, badgeURL, altText string) *Renderer {
	return &Renderer{
		flags: flags,
		fragment: `<img src="` + html.EscapeString(badgeURL) +
			`" alt="` + html.EscapeString(altText) +
			`" class="` + Class + `" width="` + Size + `" height="` + Size + `">`,
		logger: slog.Default().With("component", "badge"),
	}
}

// Fragment returns the badge markup.
func (r *Renderer) Fragment() string {
	return r.fragment
}

// Decorate returns nameHTML with the badge appended when user is verified,
// and nameHTML unchanged otherwise. Lookup errors count as not verified.
func (r *Renderer) Decorate(ctx context.Context, user *store.User, nameHTML string) string {
	if user == nil {
		return nameHTML
	}
	ok, err := r.flags.Get(ctx, user.ID)
	if err != nil {
		r.logger.Warn("verified lookup failed", "user_id", user.ID, "error", err)
		return nameHTML
	}
	if !ok {
		return nameHTML
	}
	return nameHTML + r.fragment
}
