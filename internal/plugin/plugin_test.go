package plugin

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/host"
	"github.com/2389/coven-verified/internal/profile"
	"github.com/2389/coven-verified/internal/store"
	"github.com/2389/coven-verified/internal/verification"
)

const testURL = "https://example.com/plugins/coven-verified/"

const wantBadge = `<img src="https://example.com/plugins/coven-verified/assets/verified.svg" alt="Verified" class="coven-verified-badge" width="14" height="14">`

type harness struct {
	fw    *host.Framework
	store *store.MockStore
	ctrl  *Controller
	boots int
}

func newHarness(t *testing.T, locale string, reqs ...Requirement) *harness {
	t.Helper()
	ms := store.NewMockStore()
	hs := &harness{
		fw:    host.NewFramework(ms, host.Options{BaseURL: "https://example.com", Locale: locale}),
		store: ms,
	}
	opts := Options{URL: testURL, Path: "/srv/plugins/coven-verified", Requirements: reqs, Audit: ms}
	hs.fw.RegisterPlugin(Basename, Boot(opts, func(c *Controller) {
		hs.ctrl = c
		hs.boots++
	}))
	return hs
}

func (hs *harness) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, hs.fw.ActivatePlugin(ctx, Basename))
	require.NoError(t, hs.fw.Ready(ctx))
}

func createUser(t *testing.T, s store.Store, id int64, username, display string) *store.User {
	t.Helper()
	u := &store.User{ID: id, Username: username, DisplayName: display}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func as(id int64, roles ...string) context.Context {
	return auth.WithAuth(context.Background(), &auth.AuthContext{UserID: id, Username: "actor", Roles: roles})
}

func TestEndToEnd_VerifyAndUnverify(t *testing.T) {
	hs := newHarness(t, "en")
	founder := createUser(t, hs.store, 1, "ceo", "The CEO")
	jane := createUser(t, hs.store, 42, "jane", "Jane Doe")
	hs.start(t)
	require.Equal(t, Active, hs.ctrl.State())

	flags := verification.NewStore(hs.store)
	ctx := as(founder.ID, "founder")

	require.NoError(t, hs.fw.SaveProfile(ctx, 42, url.Values{profile.FieldName: {"1"}}))
	got, err := flags.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "Jane Doe"+wantBadge, hs.fw.DisplayName(context.Background(), jane))

	require.NoError(t, hs.fw.SaveProfile(ctx, 42, url.Values{}))
	got, err = flags.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, "Jane Doe", hs.fw.DisplayName(context.Background(), jane))

	entries, err := hs.store.ListAuditLog(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEndToEnd_UnprivilegedSaveIgnored(t *testing.T) {
	hs := newHarness(t, "en")
	admin := createUser(t, hs.store, 2, "admin", "Admin")
	jane := createUser(t, hs.store, 42, "jane", "Jane Doe")
	hs.start(t)

	// Jane may save her own profile, but not her flag.
	require.NoError(t, hs.fw.SaveProfile(as(jane.ID, "member"), jane.ID, url.Values{profile.FieldName: {"1"}}))
	assert.Equal(t, "Jane Doe", hs.fw.DisplayName(context.Background(), jane))

	// A plugin manager without edit_users cannot reach her profile at all.
	err := hs.fw.SaveProfile(as(admin.ID, "admin"), jane.ID, url.Values{profile.FieldName: {"1"}})
	assert.ErrorIs(t, err, host.ErrForbidden)
	assert.Equal(t, 0, hs.store.MetaWrites())
}

func TestProfileFields_OnlyForEditors(t *testing.T) {
	hs := newHarness(t, "en")
	jane := createUser(t, hs.store, 42, "jane", "Jane Doe")
	hs.start(t)

	out, err := hs.fw.ProfileFields(as(1, "founder"), jane)
	require.NoError(t, err)
	assert.Contains(t, string(out), `name="coven_verified"`)

	out, err = hs.fw.ProfileFields(as(42, "member"), jane)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestProperty(t *testing.T) {
	hs := newHarness(t, "en")
	hs.start(t)

	v, err := hs.ctrl.Property("version")
	require.NoError(t, err)
	assert.Equal(t, "2.4.1", v)

	_, err = hs.ctrl.Property("nonexistent")
	assert.ErrorIs(t, err, ErrInvalidProperty)

	for _, name := range []string{"basename", "url", "path", "admin", "functions"} {
		v, err := hs.ctrl.Property(name)
		require.NoError(t, err, name)
		assert.NotNil(t, v, name)
	}

	p := hs.ctrl.Properties()
	assert.Equal(t, Version, p.Version)
	assert.Equal(t, Basename, p.Basename)
	assert.Equal(t, testURL, p.URL)
	assert.NotNil(t, p.Admin)
	assert.NotNil(t, p.Functions)
}

func TestDirAndURL(t *testing.T) {
	c := New(nil, Options{URL: "https://example.com/plugins/coven-verified", Path: "/srv/plugins/coven-verified"})
	assert.Equal(t, "https://example.com/plugins/coven-verified/assets/verified.svg", c.URL("/assets/verified.svg"))
	assert.Equal(t, filepath.Join("/srv/plugins/coven-verified", "languages"), c.Dir("languages"))
	assert.Equal(t, Uninitialized, c.State())
}

func TestOnActivate_FlushesRoutesOnce(t *testing.T) {
	hs := newHarness(t, "en")
	hs.start(t)
	assert.Equal(t, int64(1), hs.fw.FlushCount())

	require.NoError(t, hs.ctrl.OnDeactivate(context.Background()))
	assert.Equal(t, int64(1), hs.fw.FlushCount())
}

func TestInitialize_Idempotent(t *testing.T) {
	hs := newHarness(t, "en")
	hs.start(t)
	ctx := context.Background()

	fields := hs.fw.Bus().Count(host.HookDisplayName)
	require.NoError(t, hs.ctrl.Initialize(ctx))
	require.NoError(t, hs.ctrl.Initialize(ctx))
	assert.Equal(t, fields, hs.fw.Bus().Count(host.HookDisplayName))
	assert.Equal(t, Active, hs.ctrl.State())
}

func TestCheckRequirements_Idempotent(t *testing.T) {
	hs := newHarness(t, "en")
	jane := createUser(t, hs.store, 42, "jane", "Jane Doe")
	hs.start(t)
	ctx := context.Background()
	require.NoError(t, verification.NewStore(hs.store).Set(ctx, jane.ID, true))

	before := hs.ctrl.Properties()
	writes := hs.store.MetaWrites()
	notices := hs.fw.Bus().Count(host.HookAdminNotices)

	for i := 0; i < 5; i++ {
		assert.True(t, hs.ctrl.CheckRequirements(ctx))
	}
	assert.Equal(t, before, hs.ctrl.Properties())
	assert.Equal(t, writes, hs.store.MetaWrites())
	assert.Equal(t, notices, hs.fw.Bus().Count(host.HookAdminNotices))
	assert.Equal(t, Active, hs.ctrl.State())
}

func TestRequirementsNotMet(t *testing.T) {
	missing := errors.New("profile component missing")
	hs := newHarness(t, "en", func(ctx context.Context) error { return missing })
	jane := createUser(t, hs.store, 42, "jane", "Jane Doe")
	require.NoError(t, verification.NewStore(hs.store).Set(context.Background(), jane.ID, true))
	hs.start(t)
	ctx := context.Background()

	assert.Equal(t, Disabled, hs.ctrl.State())
	assert.ErrorIs(t, hs.ctrl.Err(), ErrRequirementsNotMet)
	assert.ErrorIs(t, hs.ctrl.Err(), missing)
	assert.Nil(t, hs.ctrl.Properties().Admin)
	assert.Equal(t, "Jane Doe", hs.fw.DisplayName(ctx, jane), "badge is not hooked")

	// Repeated checks schedule the notice only once.
	assert.False(t, hs.ctrl.CheckRequirements(ctx))
	assert.False(t, hs.ctrl.CheckRequirements(ctx))
	assert.Equal(t, 1, hs.fw.Bus().Count(host.HookAdminNotices))

	notices, err := hs.fw.AdminPage(as(1, "founder"))
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, host.NoticeError, notices[0].Level)
	assert.Contains(t, notices[0].Text, "[deactivated](https://example.com/admin/plugins)")

	assert.False(t, hs.fw.IsBooted(Basename))
	rec, err := hs.store.GetPlugin(ctx, Basename)
	require.NoError(t, err)
	assert.False(t, rec.Active)

	notices, err = hs.fw.AdminPage(as(1, "founder"))
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestReactivationStartsFresh(t *testing.T) {
	fail := true
	hs := newHarness(t, "en", func(ctx context.Context) error {
		if fail {
			return errors.New("not yet")
		}
		return nil
	})
	hs.start(t)
	ctx := context.Background()

	first := hs.ctrl
	assert.Equal(t, Disabled, first.State())
	_, err := hs.fw.AdminPage(ctx)
	require.NoError(t, err)

	fail = false
	require.NoError(t, hs.fw.ActivatePlugin(ctx, Basename))
	assert.Equal(t, 2, hs.boots)
	assert.NotSame(t, first, hs.ctrl)
	assert.Equal(t, Active, hs.ctrl.State())
	assert.Equal(t, Disabled, first.State())
}

func TestTranslatedBadgeAndNotice(t *testing.T) {
	hs := newHarness(t, "es-MX", func(ctx context.Context) error { return errors.New("x") })
	hs.start(t)

	// The text domain loads only on success, so the failure notice is in English.
	notice := hs.ctrl.RequirementsNotMetNotice(context.Background())
	assert.True(t, strings.HasPrefix(notice, "Verified Accounts is missing requirements"))

	ok := newHarness(t, "es-MX")
	jane := createUser(t, ok.store, 42, "jane", "Jane Doe")
	ok.start(t)
	require.NoError(t, verification.NewStore(ok.store).Set(context.Background(), jane.ID, true))
	assert.Contains(t, ok.fw.DisplayName(context.Background(), jane), `alt="Verificado"`)
	assert.Contains(t, ok.ctrl.RequirementsNotMetNotice(context.Background()), "[desactivado](https://example.com/admin/plugins)")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "requirements_checked", RequirementsChecked.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "disabled", Disabled.String())
	assert.Equal(t, "State(9)", State(9).String())
}
