// Package config handles configuration loading for skycast-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files (or TOML files ending in .toml)
// with environment variable expansion, duration parsing, defaults and
// validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SKYCAST_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/skycast/gateway.yaml
//  3. ~/.config/skycast/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	weather:
//	  api_key: "${OPENWEATHER_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"
//
//	database:
//	  path: "~/.local/share/skycast/gateway.db"
//	  retention: "168h"            # run log retention
//
//	auth:
//	  jwt_secret: "${SKYCAST_JWT_SECRET}"   # at least 32 bytes
//	  required: false
//
//	proxy:
//	  enabled: true
//	  command: "skycast-tools"
//	  args: []
//	  start_timeout: "30s"
//	  call_timeout: "20s"
//	  shutdown_timeout: "5s"
//
//	weather:
//	  api_key: "${OPENWEATHER_API_KEY}"
//	  requests_per_minute: 60
//	  timeout: "10s"
//
//	market:
//	  timeout: "10s"
//
//	stream:
//	  interval: "60s"
//	  max_message_bytes: 65536
//
//	session:
//	  app_name: "skycast"
//	  default_user: "anonymous"
//
//	pipeline:
//	  policy: "prefer_pipeline"    # or always_direct
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - JWT secret minimum length (32 bytes)
//   - Duration format validity and sign
//   - Pipeline policy and log format values
//   - Tailscale hostname when tailscale is enabled
package config
