// Package config handles configuration loading for the openagents network.
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
//  1. Path from OPENAGENTS_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/openagents/config.yaml
//  3. ~/.config/openagents/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${OPENAGENTS_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	events:
//	  dedupe_ttl: "5m"
//	  response_timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Network identity:
//
//	network:
//	  name: "research-net"
//	  id: "net-1234"      # generated at first start when empty
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8700"  # API, WebSocket, and metrics
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${OPENAGENTS_JWT_SECRET}"  # empty disables credentials
//	  credential_ttl: "24h"
//
// Event routing:
//
//	events:
//	  history_size: 10000
//	  queue_size: 1000
//	  dedupe_ttl: "5m"
//	  dedupe_size: 100000
//	  response_timeout: "30s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(config.ResolvePath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
