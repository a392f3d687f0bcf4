// ABOUTME: Plugin registry with persisted activation state
// ABOUTME: Boots plugins through a scoped Host and unhooks them on deactivation

package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/i18n"
	"github.com/2389/coven-verified/internal/store"
)

// BootFunc wires a fresh plugin instance into h.
type BootFunc func(h Host) error

type pluginEntry struct {
	basename string
	boot     BootFunc
	booted   bool
}

// PluginStatus describes a registered plugin.
type PluginStatus struct {
	Basename string
	Active   bool
}

// RegisterPlugin makes a plugin available for activation.
func (f *Framework) RegisterPlugin(basename string, boot BootFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.plugins[basename]; !ok {
		f.order = append(f.order, basename)
	}
	f.plugins[basename] = &pluginEntry{basename: basename, boot: boot}
}

// Scope returns the Host view used by the plugin basename.
func (f *Framework) Scope(basename string) Host {
	return &scope{fw: f, owner: basename}
}

// LoadPlugins boots every registered plugin whose stored state is active.
// Plugins without a stored state stay inactive.
func (f *Framework) LoadPlugins(ctx context.Context) error {
	list, err := f.Plugins(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, st := range list {
		if !st.Active {
			continue
		}
		if err := f.boot(ctx, st.Basename, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Plugins lists registered plugins in registration order.
func (f *Framework) Plugins(ctx context.Context) ([]PluginStatus, error) {
	f.mu.Lock()
	names := append([]string(nil), f.order...)
	f.mu.Unlock()

	out := make([]PluginStatus, 0, len(names))
	for _, name := range names {
		rec, err := f.store.GetPlugin(ctx, name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			out = append(out, PluginStatus{Basename: name})
		case err != nil:
			return out, fmt.Errorf("loading plugin %s: %w", name, err)
		default:
			out = append(out, PluginStatus{Basename: name, Active: rec.Active})
		}
	}
	return out, nil
}

// HasPluginState reports whether activation state was ever stored for basename.
func (f *Framework) HasPluginState(ctx context.Context, basename string) (bool, error) {
	_, err := f.store.GetPlugin(ctx, basename)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// IsBooted reports whether the plugin is currently hooked in.
func (f *Framework) IsBooted(basename string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plugins[basename]
	return ok && p.booted
}

func (f *Framework) boot(ctx context.Context, basename string, activating bool) error {
	f.mu.Lock()
	p, ok := f.plugins[basename]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotRegistered, basename)
	}
	if p.booted {
		f.mu.Unlock()
		return nil
	}
	p.booted = true
	f.mu.Unlock()

	if err := p.boot(f.Scope(basename)); err != nil {
		f.unhook(basename)
		return fmt.Errorf("booting plugin %s: %w", basename, err)
	}
	f.logger.Info("plugin loaded", "plugin", basename)

	if activating {
		if err := f.runActions(ctx, HookActivate, basename); err != nil {
			return fmt.Errorf("activating plugin %s: %w", basename, err)
		}
	}
	if f.IsReady() {
		return f.runActions(ctx, HookReady, basename)
	}
	return nil
}

func (f *Framework) unhook(basename string) {
	n := f.bus.RemoveOwner(basename)
	f.mu.Lock()
	if p, ok := f.plugins[basename]; ok {
		p.booted = false
	}
	f.mu.Unlock()
	f.logger.Debug("plugin unhooked", "plugin", basename, "handlers", n)
}

// ActivatePlugin persists basename as active, boots it and runs its
// activation hooks. Activating an already running plugin is a no-op.
func (f *Framework) ActivatePlugin(ctx context.Context, basename string) error {
	f.mu.Lock()
	p, ok := f.plugins[basename]
	booted := ok && p.booted
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotRegistered, basename)
	}
	if booted {
		return nil
	}

	if err := f.store.SetPluginActive(ctx, basename, true); err != nil {
		return fmt.Errorf("persisting activation: %w", err)
	}
	f.logger.Info("activating plugin", "plugin", basename)
	return f.boot(ctx, basename, true)
}

// DeactivatePlugin persists basename as inactive, runs its deactivation
// hooks and removes all of its handlers.
func (f *Framework) DeactivatePlugin(ctx context.Context, basename string) error {
	f.mu.Lock()
	_, ok := f.plugins[basename]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotRegistered, basename)
	}

	if err := f.store.SetPluginActive(ctx, basename, false); err != nil {
		return fmt.Errorf("persisting deactivation: %w", err)
	}
	f.logger.Info("deactivating plugin", "plugin", basename)

	err := f.runActions(ctx, HookDeactivate, basename)
	f.unhook(basename)
	return err
}

// scope is the Host view of one plugin. Every handler it registers is owned
// by that plugin.
type scope struct {
	fw    *Framework
	owner string
}

func (s *scope) Basename() string { return s.owner }

func (s *scope) add(name string, fn any) {
	s.fw.bus.Add(name, s.owner, DefaultPriority, fn)
}

func (s *scope) OnReady(fn ActionFunc)                  { s.add(HookReady, fn) }
func (s *scope) OnAdminInit(fn ActionFunc)              { s.add(HookAdminInit, fn) }
func (s *scope) OnAdminNotices(fn NoticeFunc)           { s.add(HookAdminNotices, fn) }
func (s *scope) OnProfileFields(fn ProfileFieldsFunc)   { s.add(HookProfileField, fn) }
func (s *scope) OnProfileSaved(fn ProfileSavedFunc)     { s.add(HookProfileSaved, fn) }
func (s *scope) OnRenderDisplayName(fn DisplayNameFunc) { s.add(HookDisplayName, fn) }
func (s *scope) RegisterActivation(fn ActionFunc)       { s.add(HookActivate, fn) }
func (s *scope) RegisterDeactivation(fn ActionFunc)     { s.add(HookDeactivate, fn) }

func (s *scope) FlushRoutes() { s.fw.FlushRoutes() }

func (s *scope) DeactivatePlugin(ctx context.Context, basename string) error {
	return s.fw.DeactivatePlugin(ctx, basename)
}

func (s *scope) LoadTextDomain(domain string, fsys fs.FS, dir string) error {
	return s.fw.texts.Load(domain, fsys, dir)
}

func (s *scope) Translator(domain string) i18n.Translator {
	return s.fw.texts.Translator(domain, s.fw.locale)
}

func (s *scope) AdminURL(path string) string { return s.fw.AdminURL(path) }

func (s *scope) CurrentUserCan(ctx context.Context, c auth.Capability) bool {
	return s.fw.CurrentUserCan(ctx, c)
}

func (s *scope) GetUserMeta(ctx context.Context, userID int64, key string) (string, bool, error) {
	return s.fw.GetUserMeta(ctx, userID, key)
}

func (s *scope) SetUserMeta(ctx context.Context, userID int64, key, value string) error {
	return s.fw.SetUserMeta(ctx, userID, key, value)
}

func (s *scope) DeleteUserMeta(ctx context.Context, userID int64, key string) error {
	return s.fw.DeleteUserMeta(ctx, userID, key)
}
