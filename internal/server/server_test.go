// ABOUTME: Tests for Server wiring, health endpoints and plugin restore
// ABOUTME: Uses in-memory and temp-dir SQLite stores with real HTTP listeners

package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/coven-verified/internal/config"
	"github.com/2389/coven-verified/internal/plugin"
	"github.com/2389/coven-verified/internal/store"
)

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := httpListener.Addr().String()
	httpListener.Close()

	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr: httpAddr,
		},
		Database: config.DatabaseConfig{
			Driver: store.DriverModernc,
			Path:   ":memory:",
		},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret-that-is-at-least-32-bytes-long",
			SessionTTL: time.Hour,
		},
		Plugin: config.PluginConfig{
			Enabled: true,
			BaseURL: config.DefaultPluginURL,
			Locale:  config.DefaultLocale,
			Audit:   true,
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerNew(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	if srv.config != cfg {
		t.Error("server config mismatch")
	}
	if !srv.Host().IsBooted(plugin.Basename) {
		t.Error("plugin should be booted on first start when enabled")
	}
	if srv.Controller() == nil {
		t.Fatal("controller should be recorded on boot")
	}
	if got := srv.Controller().State(); got != plugin.Uninitialized {
		t.Errorf("state before ready = %v, want %v", got, plugin.Uninitialized)
	}
}

func TestServerNew_PluginDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugin.Enabled = false

	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	if srv.Host().IsBooted(plugin.Basename) {
		t.Error("plugin should not boot when disabled and no state is stored")
	}
}

func TestServerNew_StoredStateWins(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "verified.db")
	ctx := context.Background()

	first, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := first.Host().DeactivatePlugin(ctx, plugin.Basename); err != nil {
		t.Fatalf("DeactivatePlugin() failed: %v", err)
	}
	if err := first.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	second, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer second.Shutdown(ctx)

	if second.Host().IsBooted(plugin.Basename) {
		t.Error("deactivated plugin should stay inactive despite plugin.enabled")
	}
}

func TestReadyEndpoint(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	rec := get(t, srv.Handler(), "/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status before Ready = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	if err := srv.Host().Ready(context.Background()); err != nil {
		t.Fatalf("Ready() failed: %v", err)
	}

	rec = get(t, srv.Handler(), "/health/ready")
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); body != "ready (plugin active)" {
		t.Errorf("ready body = %q", body)
	}
}

func TestAssetRoutes(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	tests := []struct {
		path        string
		contentType string
	}{
		{"/plugins/coven-verified/assets/verified.svg", "image/svg+xml"},
		{"/static/verified.svg", "image/svg+xml"},
		{"/static/admin.css", "text/css; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, srv.Handler(), tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
		})
	}
}

func TestMembersPage_Anonymous(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	ctx := context.Background()
	u := &store.User{Username: "jane", DisplayName: "Jane Doe"}
	if err := srv.store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if err := srv.store.SetUserMeta(ctx, u.ID, "coven_verified_account", "1"); err != nil {
		t.Fatalf("SetUserMeta() failed: %v", err)
	}
	if err := srv.Host().Ready(ctx); err != nil {
		t.Fatalf("Ready() failed: %v", err)
	}

	rec := get(t, srv.Handler(), "/members")
	if rec.Code != http.StatusOK {
		t.Fatalf("members status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `Jane Doe<img src="/plugins/coven-verified/assets/verified.svg"`) {
		t.Errorf("members page missing badge: %s", rec.Body.String())
	}
}

func TestServerRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()

	// Give it time to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("health = %d %q, want 200 OK", resp.StatusCode, body)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("server did not shutdown in time")
	}
}

func TestDetermineBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		env  string
		want string
	}{
		{
			name: "explicit",
			cfg:  config.Config{WebAdmin: config.WebAdminConfig{BaseURL: "https://members.example.com"}},
			env:  "https://ignored.example.com",
			want: "https://members.example.com",
		},
		{
			name: "env",
			cfg:  config.Config{Server: config.ServerConfig{HTTPAddr: "localhost:8080"}},
			env:  "https://verified.tailnet.ts.net",
			want: "https://verified.tailnet.ts.net",
		},
		{
			name: "http addr",
			cfg:  config.Config{Server: config.ServerConfig{HTTPAddr: "localhost:8080"}},
			want: "http://localhost:8080",
		},
		{
			name: "tailscale http",
			cfg:  config.Config{Tailscale: config.TailscaleConfig{Enabled: true, Hostname: "verified"}},
			want: "http://verified",
		},
		{
			name: "tailscale https",
			cfg:  config.Config{Tailscale: config.TailscaleConfig{Enabled: true, Hostname: "verified", HTTPS: true}},
			want: "https://verified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COVEN_VERIFIED_URL", tt.env)
			if got := determineBaseURL(&tt.cfg); got != tt.want {
				t.Errorf("determineBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssetsPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/plugins/coven-verified/", "/plugins/coven-verified/assets/"},
		{"/plugins/coven-verified", "/plugins/coven-verified/assets/"},
		{"https://example.com/wp/plugins/verified/", "/wp/plugins/verified/assets/"},
		{"https://example.com", "/assets/"},
		{"", "/assets/"},
	}
	for _, tt := range tests {
		if got := assetsPath(tt.in); got != tt.want {
			t.Errorf("assetsPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBadgePresent(t *testing.T) {
	if err := badgePresent(context.Background()); err != nil {
		t.Errorf("badgePresent() = %v, want nil", err)
	}
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	if _, err := resolveTailscaleAuthKey(""); err == nil {
		t.Error("expected error without auth key")
	}

	t.Setenv("TS_AUTHKEY", "tskey-env")
	if got, err := resolveTailscaleAuthKey(""); err != nil || got != "tskey-env" {
		t.Errorf("resolveTailscaleAuthKey() = %q, %v", got, err)
	}
	if got, _ := resolveTailscaleAuthKey("tskey-config"); got != "tskey-config" {
		t.Errorf("configured key should win, got %q", got)
	}
}

func TestResolveTailscaleStateDir(t *testing.T) {
	if got, _ := resolveTailscaleStateDir("/var/lib/verified"); got != "/var/lib/verified" {
		t.Errorf("configured dir should win, got %q", got)
	}

	t.Setenv("HOME", "/home/tester")
	got, err := resolveTailscaleStateDir("")
	if err != nil {
		t.Fatalf("resolveTailscaleStateDir() failed: %v", err)
	}
	if want := filepath.Join("/home/tester", ".local", "share", "coven-verified", "tailscale"); got != want {
		t.Errorf("resolveTailscaleStateDir() = %q, want %q", got, want)
	}
}
