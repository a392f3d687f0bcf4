package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/config"
	"github.com/2389/coven-verified/internal/store"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("COVEN_VERIFIED_CONFIG", "/etc/coven/verified.yaml")
	assert.Equal(t, "/etc/coven/verified.yaml", getConfigPath())

	t.Setenv("COVEN_VERIFIED_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "coven", "verified.yaml"), getConfigPath())
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	assert.Equal(t, filepath.Join("/tmp/data", "coven"), getDataPath())
}

func TestParseBootstrapArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    bootstrapArgs
		wantErr string
	}{
		{"separate values", []string{"--username", "ceo", "--name", "The CEO"}, bootstrapArgs{"ceo", "The CEO"}, ""},
		{"equals form", []string{"--username=ceo", "-n=The CEO"}, bootstrapArgs{"ceo", "The CEO"}, ""},
		{"name defaults to username", []string{"-u", "ceo"}, bootstrapArgs{"ceo", "ceo"}, ""},
		{"trims whitespace", []string{"-u", "  ceo  "}, bootstrapArgs{"ceo", "ceo"}, ""},
		{"missing username", []string{"--name", "The CEO"}, bootstrapArgs{}, "--username flag is required"},
		{"missing value", []string{"--username"}, bootstrapArgs{}, "--username requires a value"},
		{"unknown flag", []string{"--bogus"}, bootstrapArgs{}, "unknown flag"},
		{"positional", []string{"ceo"}, bootstrapArgs{}, "unexpected argument"},
		{"long name", []string{"-u", "ceo", "-n", strings.Repeat("x", 101)}, bootstrapArgs{}, "maximum length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBootstrapArgs(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBootstrap(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config", "verified.yaml")
	dataPath := filepath.Join(dir, "data")
	ctx := context.Background()

	user, err := bootstrap(ctx, configPath, dataPath, bootstrapArgs{Username: "ceo", DisplayName: "The CEO"}, "correct horse")
	require.NoError(t, err)
	assert.Positive(t, user.ID)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataPath, "verified.db"), cfg.Database.Path)
	assert.GreaterOrEqual(t, len(cfg.Auth.JWTSecret), config.MinSecretLength)
	assert.True(t, cfg.Plugin.Enabled)

	s, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	require.NoError(t, err)
	stored, err := s.GetUserByUsername(ctx, "ceo")
	require.NoError(t, err)
	assert.NoError(t, auth.CheckPassword(stored.PasswordHash, "correct horse"))
	roles, err := s.ListRoles(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, []store.RoleName{store.RoleFounder}, roles)
	require.NoError(t, s.Close())

	// A second run must not create another founder
	_, err = bootstrap(ctx, configPath, dataPath, bootstrapArgs{Username: "other", DisplayName: "Other"}, "correct horse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap already complete")
}

func TestBootstrap_ShortPassword(t *testing.T) {
	dir := t.TempDir()
	_, err := bootstrap(context.Background(), filepath.Join(dir, "verified.yaml"), dir, bootstrapArgs{Username: "ceo"}, "short")
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "verified.yaml"))
	assert.True(t, os.IsNotExist(statErr), "config must not be written for a rejected password")
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	_, ok := logger.Handler().(*slog.JSONHandler)
	assert.True(t, ok)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	logger = setupLogger(config.LoggingConfig{Level: "debug", Format: "text"})
	_, ok = logger.Handler().(*colorHandler)
	assert.True(t, ok)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestColorHandler_Format(t *testing.T) {
	color.NoColor = true
	base := setupLogger(config.LoggingConfig{Level: "info"}).Handler().(*colorHandler)

	h := base.WithAttrs([]slog.Attr{slog.String("component", "host")}).WithGroup("req").(*colorHandler)
	r := slog.NewRecord(time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC), slog.LevelWarn, "slow request", 0)
	r.AddAttrs(slog.Int("ms", 900))

	assert.Equal(t, "13:04:05 WRN slow request component=host req.ms=900\n", h.format(r))
	assert.Same(t, base.mu, h.mu)
}
