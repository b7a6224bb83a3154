// ABOUTME: Tests for skycast-gateway command helpers
// ABOUTME: Covers token flag parsing, config path lookup, generated config and console logging

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/2389/skycast-gateway/internal/config"
)

func TestParseTokenArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		subject string
		ttl     time.Duration
		wantErr string
	}{
		{"subject flag", []string{"--subject", "alice"}, "alice", defaultTokenTTL, ""},
		{"short flag", []string{"-s", "bob"}, "bob", defaultTokenTTL, ""},
		{"equals form", []string{"--subject=carol", "--ttl=2h"}, "carol", 2 * time.Hour, ""},
		{"ttl flag", []string{"--ttl", "90m", "--subject", "dave"}, "dave", 90 * time.Minute, ""},
		{"missing subject", []string{"--ttl", "1h"}, "", 0, "--subject flag is required"},
		{"blank subject", []string{"--subject", "  "}, "", 0, "--subject flag is required"},
		{"dangling subject", []string{"--subject"}, "", 0, "--subject requires a value"},
		{"long subject", []string{"--subject", strings.Repeat("x", 101)}, "", 0, "maximum length"},
		{"bad ttl", []string{"--subject", "a", "--ttl", "soon"}, "", 0, "invalid --ttl"},
		{"negative ttl", []string{"--subject", "a", "--ttl", "-1h"}, "", 0, "--ttl must be positive"},
		{"unknown flag", []string{"--admin"}, "", 0, "unknown flag: --admin"},
		{"positional", []string{"alice"}, "", 0, "unexpected argument: alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTokenArgs(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subject, got.subject)
			assert.Equal(t, tt.ttl, got.ttl)
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("SKYCAST_CONFIG", "/etc/skycast.yaml")
	assert.Equal(t, "/etc/skycast.yaml", getConfigPath())

	t.Setenv("SKYCAST_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "skycast", "gateway.yaml"), getConfigPath())
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, filepath.Join("/data", "skycast"), getDataPath())
}

func TestRenderConfigLoads(t *testing.T) {
	secret, err := randomSecret()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(secret), config.MinJWTSecretLen)

	data, err := renderConfig(initDocument{
		Server:   map[string]any{"http_addr": "localhost:9000"},
		Database: map[string]any{"path": "runs.db", "retention": "168h"},
		Auth:     map[string]any{"jwt_secret": secret, "required": true},
		Proxy:    map[string]any{"enabled": false, "command": "skycast-tools"},
		Weather:  map[string]any{"api_key": "${OPENWEATHER_API_KEY}"},
		Stream:   map[string]any{"interval": "30s"},
		Pipeline: map[string]any{"policy": "always_direct"},
		Logging:  map[string]any{"level": "debug", "format": "json"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# skycast-gateway configuration"))

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "tailscale", "tailscale section omitted when disabled")

	t.Setenv("OPENWEATHER_API_KEY", "owm")
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "owm", cfg.Weather.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Stream.Interval)
	assert.Equal(t, "always_direct", cfg.Pipeline.Policy)
	assert.True(t, cfg.Auth.Required)
}

func TestYes(t *testing.T) {
	assert.True(t, yes("y"))
	assert.True(t, yes(" YES "))
	assert.False(t, yes("no"))
	assert.False(t, yes(""))
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.With("component", "proxy").WithGroup("call").Warn("slow", "tool", "get_weather")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN slow")
	assert.Contains(t, out, " component=proxy")
	assert.Contains(t, out, " call.tool=get_weather")
}

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("round", "pipeline", "weather_prediction")
	assert.Contains(t, buf.String(), `"msg":"round"`)
	assert.Contains(t, buf.String(), `"pipeline":"weather_prediction"`)
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
}
