// Package server wires configuration, storage, the plugin host, the
// verified accounts plugin and the web admin into one HTTP server.
//
// Routes are registered on the host's route table so plugins can flush
// them on activation. Requests pass through auth.Middleware first.
//
// The listener is either a plain TCP socket on server.http_addr or a
// Tailscale node (tsnet) serving :80, :443 with Tailscale certificates,
// or a public Funnel.
package server
