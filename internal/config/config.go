// ABOUTME: Configuration loading and parsing for skycast-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete skycast-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Proxy     ProxyConfig     `yaml:"proxy" toml:"proxy"`
	Weather   WeatherConfig   `yaml:"weather" toml:"weather"`
	Market    MarketConfig    `yaml:"market" toml:"market"`
	Stream    StreamConfig    `yaml:"stream" toml:"stream"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Pipeline  PipelineConfig  `yaml:"pipeline" toml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	MCP      bool   `yaml:"mcp" toml:"mcp"` // streamable HTTP MCP endpoint at /mcp
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve TLS with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public HTTPS via Funnel
}

// DatabaseConfig holds run log database configuration
type DatabaseConfig struct {
	Path      string        `yaml:"path" toml:"path"`
	Retention time.Duration `yaml:"-" toml:"-"`

	RetentionRaw string `yaml:"retention" toml:"retention"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	// Required rejects API and stream requests without a valid token.
	Required bool `yaml:"required" toml:"required"`
}

// ProxyConfig describes the MCP tool host the gateway proxies to
type ProxyConfig struct {
	Enabled         bool          `yaml:"enabled" toml:"enabled"`
	Command         string        `yaml:"command" toml:"command"`
	Args            []string      `yaml:"args" toml:"args"`
	Env             []string      `yaml:"env" toml:"env"`
	StartTimeout    time.Duration `yaml:"-" toml:"-"`
	CallTimeout     time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	StartTimeoutRaw    string `yaml:"start_timeout" toml:"start_timeout"`
	CallTimeoutRaw     string `yaml:"call_timeout" toml:"call_timeout"`
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// WeatherConfig holds OpenWeatherMap settings
type WeatherConfig struct {
	APIKey            string        `yaml:"api_key" toml:"api_key"`
	BaseURL           string        `yaml:"base_url" toml:"base_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// MarketConfig holds price history settings
type MarketConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// StreamConfig holds streaming endpoint settings
type StreamConfig struct {
	Interval        time.Duration `yaml:"-" toml:"-"`
	MaxMessageBytes int64         `yaml:"max_message_bytes" toml:"max_message_bytes"`

	IntervalRaw string `yaml:"interval" toml:"interval"`

	// OriginPatterns lists extra browser origins allowed to open streams.
	OriginPatterns []string `yaml:"origin_patterns" toml:"origin_patterns"`
}

// SessionConfig holds session identity settings
type SessionConfig struct {
	AppName     string `yaml:"app_name" toml:"app_name"`
	DefaultUser string `yaml:"default_user" toml:"default_user"`
	MaxLive     int    `yaml:"max_live" toml:"max_live"`
}

// PipelineConfig holds the delivery policy
type PipelineConfig struct {
	Policy string `yaml:"policy" toml:"policy"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults applied by Load when a value is unset.
const (
	DefaultHTTPAddr        = "localhost:8080"
	DefaultRetention       = 7 * 24 * time.Hour
	DefaultProxyCommand    = "skycast-tools"
	DefaultStartTimeout    = 30 * time.Second
	DefaultCallTimeout     = 20 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultStreamInterval  = 60 * time.Second
	DefaultMaxMessageBytes = 64 << 10
	DefaultAppName         = "skycast"
	DefaultUser            = "anonymous"
	DefaultPolicy          = "prefer_pipeline"
)

// MinJWTSecretLen is the minimum accepted HMAC secret length in bytes.
const MinJWTSecretLen = 32

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Retention == 0 {
		c.Database.Retention = DefaultRetention
	}
	if c.Proxy.Command == "" {
		c.Proxy.Command = DefaultProxyCommand
	}
	if c.Proxy.StartTimeout == 0 {
		c.Proxy.StartTimeout = DefaultStartTimeout
	}
	if c.Proxy.CallTimeout == 0 {
		c.Proxy.CallTimeout = DefaultCallTimeout
	}
	if c.Proxy.ShutdownTimeout == 0 {
		c.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Weather.Timeout == 0 {
		c.Weather.Timeout = DefaultHTTPTimeout
	}
	if c.Market.Timeout == 0 {
		c.Market.Timeout = DefaultHTTPTimeout
	}
	if c.Stream.Interval == 0 {
		c.Stream.Interval = DefaultStreamInterval
	}
	if c.Stream.MaxMessageBytes == 0 {
		c.Stream.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.Session.AppName == "" {
		c.Session.AppName = DefaultAppName
	}
	if c.Session.DefaultUser == "" {
		c.Session.DefaultUser = DefaultUser
	}
	if c.Pipeline.Policy == "" {
		c.Pipeline.Policy = DefaultPolicy
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLen)
	}
	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth.required is set")
	}

	if c.Proxy.Enabled && strings.TrimSpace(c.Proxy.Command) == "" {
		return fmt.Errorf("proxy.command is required when proxy is enabled")
	}

	if c.Weather.RequestsPerMinute < 0 {
		return fmt.Errorf("weather.requests_per_minute must not be negative")
	}

	if c.Stream.Interval < 0 {
		return fmt.Errorf("stream.interval must be positive")
	}
	if c.Stream.MaxMessageBytes < 0 {
		return fmt.Errorf("stream.max_message_bytes must not be negative")
	}

	if c.Session.MaxLive < 0 {
		return fmt.Errorf("session.max_live must not be negative")
	}

	switch c.Pipeline.Policy {
	case "", "prefer_pipeline", "always_direct":
	default:
		return fmt.Errorf("pipeline.policy must be prefer_pipeline or always_direct, got %q", c.Pipeline.Policy)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"database.retention", cfg.Database.RetentionRaw, &cfg.Database.Retention},
		{"proxy.start_timeout", cfg.Proxy.StartTimeoutRaw, &cfg.Proxy.StartTimeout},
		{"proxy.call_timeout", cfg.Proxy.CallTimeoutRaw, &cfg.Proxy.CallTimeout},
		{"proxy.shutdown_timeout", cfg.Proxy.ShutdownTimeoutRaw, &cfg.Proxy.ShutdownTimeout},
		{"weather.timeout", cfg.Weather.TimeoutRaw, &cfg.Weather.Timeout},
		{"market.timeout", cfg.Market.TimeoutRaw, &cfg.Market.Timeout},
		{"stream.interval", cfg.Stream.IntervalRaw, &cfg.Stream.Interval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
