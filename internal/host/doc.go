// Package host implements the site framework that plugins extend.
//
// Plugins never see the Framework directly. Each registered plugin is booted
// with a Host, a view of the framework scoped to that plugin, through which
// it subscribes to lifecycle events and filters:
//
//	fw.RegisterPlugin("coven-verified/verified.go", func(h host.Host) error {
//	    h.OnReady(func(ctx context.Context) error { ... })
//	    h.OnRenderDisplayName(func(ctx context.Context, u *store.User, name string) string { ... })
//	    return nil
//	})
//
// # Hooks
//
// Handlers live on a Bus keyed by hook name and ordered by priority (lower
// runs first, DefaultPriority when unspecified) and then registration order.
// Every handler is tagged with its owning plugin, so deactivating a plugin
// removes everything it registered.
//
// # Plugin lifecycle
//
// Activation state is persisted in the store. ActivatePlugin boots the
// plugin, runs its activation hooks and, when the framework is already
// ready, its ready handlers. DeactivatePlugin runs the deactivation hooks and
// unhooks the plugin. Reactivation boots a fresh plugin instance.
//
// # Routing
//
// Routes are collected into a table and compiled into a ServeMux on demand.
// FlushRoutes discards the compiled mux so the next request rebuilds it.
package host
