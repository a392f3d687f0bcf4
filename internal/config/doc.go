// Package config handles configuration loading for coven-verified.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_VERIFIED_CONFIG environment variable
//  2. ~/.config/coven/verified.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${COVEN_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Admin screens and member directory
//
// Database:
//
//	database:
//	  driver: "sqlite"            # sqlite (pure Go) or sqlite3 (cgo)
//	  path: "/var/lib/coven/verified.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${COVEN_JWT_SECRET}"   # Required, at least 32 bytes
//	  session_ttl: "24h"
//
// Plugin:
//
//	plugin:
//	  enabled: true                        # Activate on first start
//	  base_url: "/plugins/coven-verified/"
//	  locale: "en"
//	  audit: true                          # Record verification changes
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "coven-verified"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/coven/verified.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
