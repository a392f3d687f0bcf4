// ABOUTME: Entry point for coven-verified, the verified accounts server
// ABOUTME: Provides serve, bootstrap and health commands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-verified/internal/auth"
	"github.com/2389/coven-verified/internal/config"
	"github.com/2389/coven-verified/internal/server"
	"github.com/2389/coven-verified/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                _  __ _          _
  ___ _____   _____ _ __   __   _____ _ __(_)/ _(_) ___  __| |
 / __/ _ \ \ / / _ \ '_ \  \ \ / / _ \ '__| | |_| |/ _ \/ _' |
| (_| (_) \ V /  __/ | | |  \ V /  __/ |  | |  _| |  __/ (_| |
 \___\___/ \_/ \___|_| |_|   \_/ \___|_|  |_|_| |_|\___|\__,_|
`

// minPasswordLength is the shortest founder password bootstrap accepts.
const minPasswordLength = 8

// getConfigPath returns the path to the config file.
// Priority: COVEN_VERIFIED_CONFIG env var > XDG_CONFIG_HOME/coven/verified.yaml > ~/.config/coven/verified.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_VERIFIED_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "verified.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "verified.yaml")
}

// getDataPath returns the path to the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-verified <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                              Start the server")
		fmt.Println("  bootstrap --username USER [--name NAME]")
		fmt.Println("                                     Create config and the founder account")
		fmt.Println("  health                             Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Packages log through slog.Default().With("component", ...)
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Plugin:    %s", cfg.Plugin.BaseURL)
	if cfg.Plugin.Locale != config.DefaultLocale {
		gray.Printf(" [%s]", cfg.Plugin.Locale)
	}
	fmt.Println()

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting coven-verified",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// bootstrapArgs holds the parsed bootstrap flags.
type bootstrapArgs struct {
	Username    string
	DisplayName string
}

// parseBootstrapArgs supports both "--flag value" and "--flag=value" formats.
func parseBootstrapArgs(args []string) (bootstrapArgs, error) {
	var out bootstrapArgs
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		var target *string
		switch name {
		case "--username", "-u":
			target = &out.Username
		case "--name", "-n":
			target = &out.DisplayName
		default:
			if strings.HasPrefix(arg, "-") {
				return out, fmt.Errorf("unknown flag: %s", arg)
			}
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		*target = value
	}

	out.Username = strings.TrimSpace(out.Username)
	out.DisplayName = strings.TrimSpace(out.DisplayName)
	if out.Username == "" {
		return out, errors.New("--username flag is required")
	}
	if len(out.DisplayName) > 100 {
		return out, errors.New("display name exceeds maximum length of 100 characters")
	}
	if out.DisplayName == "" {
		out.DisplayName = out.Username
	}
	return out, nil
}

// readPassword returns COVEN_BOOTSTRAP_PASSWORD or prompts on stdin.
func readPassword() (string, error) {
	if pw := os.Getenv("COVEN_BOOTSTRAP_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Print("  Founder password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// writeDefaultConfig writes a starter config with a random JWT secret.
func writeDefaultConfig(configPath, dbPath string) error {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# coven-verified configuration
# Generated by coven-verified bootstrap

server:
  http_addr: "localhost:8080"

database:
  driver: "sqlite"
  path: "%s"

auth:
  jwt_secret: "%s"
  session_ttl: "24h"

plugin:
  enabled: true
  base_url: "%s"
  locale: "%s"
  audit: true

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret, config.DefaultPluginURL, config.DefaultLocale)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// bootstrap creates the config (if missing) and the founder account.
func bootstrap(ctx context.Context, configPath, dataPath string, args bootstrapArgs, password string) (*store.User, error) {
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefaultConfig(configPath, filepath.Join(dataPath, "verified.db")); err != nil {
			return nil, err
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	s, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	count, err := s.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking users: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("bootstrap already complete: %d user(s) exist", count)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		Username:     args.Username,
		DisplayName:  args.DisplayName,
		PasswordHash: hash,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	// Grant founder role. If this fails, attempt to clean up the user
	// to avoid leaving the system in a partially bootstrapped state.
	if err := s.AddRole(ctx, user.ID, store.RoleFounder); err != nil {
		_ = s.DeleteUser(ctx, user.ID)
		return nil, fmt.Errorf("granting founder role: %w", err)
	}

	green.Printf("  ✓ Created founder: %s\n", user.Username)
	return user, nil
}

// runBootstrap performs first-time setup:
// 1. Creates config file with random JWT secret (if not exists)
// 2. Creates database and the founder account with a password
//
// This is a one-command setup: coven-verified bootstrap --username you
func runBootstrap(ctx context.Context, rawArgs []string) error {
	args, err := parseBootstrapArgs(rawArgs)
	if err != nil {
		return err
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	user, err := bootstrap(ctx, getConfigPath(), getDataPath(), args, password)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Founder")
	cyan.Println("  -------")
	fmt.Printf("  ID:           %d\n", user.ID)
	fmt.Printf("  Username:     %s\n", user.Username)
	fmt.Printf("  Display Name: %s\n", user.DisplayName)
	fmt.Printf("  Roles:        founder\n")
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    coven-verified serve   # start the server")
	fmt.Println("    open /admin/login      # log in as the founder")
	fmt.Println()

	return nil
}
