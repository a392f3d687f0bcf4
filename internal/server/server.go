// ABOUTME: Server orchestrator wiring config, store, plugin host and web admin
// ABOUTME: Manages the HTTP listener (TCP or Tailscale), health endpoints and shutdown

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/coven-verified/internal/assets"
	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/config"
	"github.com/2389/coven-verified/internal/host"
	"github.com/2389/coven-verified/internal/plugin"
	"github.com/2389/coven-verified/internal/store"
	"github.com/2389/coven-verified/internal/throttle"
	"github.com/2389/coven-verified/internal/webadmin"
)

// ErrBadgeMissing means the embedded badge image could not be found.
var ErrBadgeMissing = errors.New("badge image missing")

// Server orchestrates the coven-verified components.
type Server struct {
	config      *config.Config
	store       store.Store
	host        *host.Framework
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	webAdmin    *webadmin.Admin
	limiter     *throttle.Limiter
	logger      *slog.Logger

	// controller is the plugin's current controller, replaced on each boot
	controller atomic.Pointer[plugin.Controller]
}

// determineBaseURL resolves the site base URL from config or environment.
func determineBaseURL(cfg *config.Config) string {
	// Use explicit config first
	if cfg.WebAdmin.BaseURL != "" {
		return cfg.WebAdmin.BaseURL
	}

	// Check COVEN_VERIFIED_URL env var (includes full tailnet DNS name)
	if envURL := os.Getenv("COVEN_VERIFIED_URL"); envURL != "" {
		return envURL
	}

	// Auto-detect based on deployment mode
	if !cfg.Tailscale.Enabled {
		return "http://" + cfg.Server.HTTPAddr
	}
	if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
		return "https://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Tailscale.Hostname
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("COVEN_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.Open(cfg.Database.Driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// assetsPath returns the URL path the plugin's assets are served under.
func assetsPath(pluginURL string) string {
	p := "/"
	if u, err := url.Parse(pluginURL); err == nil && u.Path != "" {
		p = u.Path
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + "assets/"
}

// badgePresent is the plugin requirement that the badge image is embedded.
func badgePresent(context.Context) error {
	if _, err := fs.Stat(assets.FS(), assets.BadgeFile); err != nil {
		return fmt.Errorf("%w: %w", ErrBadgeMissing, err)
	}
	return nil
}

// New creates a new Server with the given configuration. The plugin is
// registered and its stored activation state restored, but the host is not
// ready until Run.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	s, err := newWithStore(ctx, cfg, sqlStore)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}
	return s, nil
}

func newWithStore(ctx context.Context, cfg *config.Config, st store.Store) (*Server, error) {
	logger := slog.Default().With("component", "server")
	baseURL := determineBaseURL(cfg)

	fw := host.NewFramework(st, host.Options{
		BaseURL: baseURL,
		Locale:  cfg.Plugin.Locale,
	})

	srv := &Server{
		config: cfg,
		store:  st,
		host:   fw,
		logger: logger,
	}

	opts := plugin.Options{
		URL:          cfg.Plugin.BaseURL,
		Path:         cfg.Plugin.Path,
		Requirements: []plugin.Requirement{badgePresent},
	}
	if cfg.Plugin.Audit {
		opts.Audit = st
	}
	fw.RegisterPlugin(plugin.Basename, plugin.Boot(opts, srv.controller.Store))

	if err := srv.restorePlugins(ctx); err != nil {
		return nil, err
	}

	// Static files and health endpoints - no auth required
	static := assets.FileServer()
	fw.Handle("GET /static/", http.StripPrefix("/static/", static))
	pluginAssets := assetsPath(cfg.Plugin.BaseURL)
	if pluginAssets != "/static/" {
		fw.Handle("GET "+pluginAssets, http.StripPrefix(pluginAssets, static))
	}
	fw.Handle("GET /health", http.HandlerFunc(srv.handleHealth))
	fw.Handle("GET /health/ready", http.HandlerFunc(srv.handleReady))

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	srv.limiter = throttle.New(throttle.DefaultWindow, throttle.DefaultMaxFailures, throttle.DefaultMaxKeys)
	srv.webAdmin = webadmin.New(webadmin.Config{
		Host:            fw,
		TokenGenerator:  verifier,
		SessionDuration: cfg.Auth.SessionTTL,
		LoginLimiter:    srv.limiter,
	})
	srv.webAdmin.RegisterRoutes(fw)
	logger.Info("admin web UI enabled at /admin/", "base_url", baseURL)

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           auth.Middleware(st, verifier)(fw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

// restorePlugins boots plugins whose stored state is active. On first start
// the verified plugin is activated when plugin.enabled is set.
func (s *Server) restorePlugins(ctx context.Context) error {
	if err := s.host.LoadPlugins(ctx); err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}

	known, err := s.host.HasPluginState(ctx, plugin.Basename)
	if err != nil {
		return fmt.Errorf("reading plugin state: %w", err)
	}
	if !known && s.config.Plugin.Enabled {
		s.logger.Info("activating plugin on first start", "plugin", plugin.Basename)
		if err := s.host.ActivatePlugin(ctx, plugin.Basename); err != nil {
			return fmt.Errorf("activating plugin: %w", err)
		}
	}
	return nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Host returns the plugin host.
func (s *Server) Host() *host.Framework {
	return s.host
}

// Controller returns the plugin controller from the most recent boot, or
// nil if the plugin never booted.
func (s *Server) Controller() *plugin.Controller {
	return s.controller.Load()
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (s *Server) setupTCPListener() (net.Listener, error) {
	s.logger.Info("starting server", "http_addr", s.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}
	return s.setupTCPListener()
}

// Run fires the ready hook, serves HTTP and blocks until the context is
// canceled. Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.host.Ready(ctx); err != nil {
		// Plugins report their own failures through admin notices
		s.logger.Error("ready hook reported errors", "error", err)
	}

	ln, err := s.setupListener(ctx)
	if err != nil {
		_ = s.store.Close()
		s.limiter.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-verified", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns the HTTP listener.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	return s.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (s *Server) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return s.createTailscaleTLSListener()
	default:
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (s *Server) createTailscaleTLSListener() (net.Listener, error) {
	s.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := s.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := s.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())
	s.limiter.Close()

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the ready hook has fired.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.host.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	state := "inactive"
	if c := s.Controller(); c != nil && s.host.IsBooted(plugin.Basename) {
		state = c.State().String()
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (plugin %s)", state)
}
