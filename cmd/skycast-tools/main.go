// ABOUTME: Stdio MCP host exposing the weather, prediction and activity capabilities
// ABOUTME: Spawned by skycast-gateway's proxy client; stdout carries MCP so logs go to stderr

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/2389/skycast-gateway/internal/config"
	"github.com/2389/skycast-gateway/internal/gateway"
	"github.com/2389/skycast-gateway/internal/toolhost"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("skycast-tools exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig(configPath())
	if err != nil {
		return err
	}

	toolhost.Version = version
	s, err := toolhost.New(gateway.LocalCapabilities(cfg)...)
	if err != nil {
		return fmt.Errorf("creating tool host: %w", err)
	}

	logger.Info("serving tools over stdio", "version", version)
	return server.ServeStdio(s)
}

// configPath mirrors skycast-gateway's lookup so both binaries share one file.
func configPath() string {
	if envPath := os.Getenv("SKYCAST_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "skycast", "gateway.yaml")
}

// loadConfig reads path, falling back to defaults when no file exists.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg = &config.Config{}
	cfg.ApplyDefaults()
	return cfg, nil
}
