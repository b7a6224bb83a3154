// ABOUTME: Interactive init command writing a starter gateway.yaml
// ABOUTME: Generates a random JWT secret and leaves the weather key as an env reference

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389/skycast-gateway/internal/config"
)

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("skycast-gateway configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "runs.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite run log path", defaultDbPath)

	fmt.Println("\n--- Tool Host ---")
	proxyEnabled := yes(prompt(reader, "Proxy capabilities through skycast-tools?", "yes"))
	proxyCommand := config.DefaultProxyCommand
	if proxyEnabled {
		proxyCommand = prompt(reader, "Tool host command", config.DefaultProxyCommand)
	}

	fmt.Println("\n--- Auth ---")
	authRequired := yes(prompt(reader, "Require API tokens?", "no"))

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := yes(prompt(reader, "Enable Tailscale?", "no"))
	var ts config.TailscaleConfig
	if tailscaleEnabled {
		ts.Enabled = true
		ts.Hostname = prompt(reader, "Tailscale hostname", "skycast")
		ts.AuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		ts.Ephemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		ts.Funnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	doc := initDocument{
		Server:   map[string]any{"http_addr": httpAddr},
		Database: map[string]any{"path": dbPath, "retention": "168h"},
		Auth:     map[string]any{"jwt_secret": secret, "required": authRequired},
		Proxy: map[string]any{
			"enabled":      proxyEnabled,
			"command":      proxyCommand,
			"call_timeout": config.DefaultCallTimeout.String(),
		},
		Weather:  map[string]any{"api_key": "${OPENWEATHER_API_KEY}"},
		Stream:   map[string]any{"interval": config.DefaultStreamInterval.String()},
		Pipeline: map[string]any{"policy": config.DefaultPolicy},
		Logging:  map[string]any{"level": logLevel, "format": logFormat},
	}
	if tailscaleEnabled {
		doc.Tailscale = &ts
	}

	data, err := renderConfig(doc)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file carries the JWT secret.
	if err := os.WriteFile(outputFile, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Println("  export OPENWEATHER_API_KEY=...")
	fmt.Println("  skycast-gateway serve")

	return nil
}

// initDocument is the shape of the generated config file.
type initDocument struct {
	Server    map[string]any          `yaml:"server"`
	Tailscale *config.TailscaleConfig `yaml:"tailscale,omitempty"`
	Database  map[string]any          `yaml:"database"`
	Auth      map[string]any          `yaml:"auth"`
	Proxy     map[string]any          `yaml:"proxy"`
	Weather   map[string]any          `yaml:"weather"`
	Stream    map[string]any          `yaml:"stream"`
	Pipeline  map[string]any          `yaml:"pipeline"`
	Logging   map[string]any          `yaml:"logging"`
}

func renderConfig(doc initDocument) ([]byte, error) {
	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	header := "# skycast-gateway configuration\n# Generated by skycast-gateway init\n\n"
	return append([]byte(header), body...), nil
}

func randomSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func yes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
