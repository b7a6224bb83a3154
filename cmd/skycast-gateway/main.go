// ABOUTME: Entry point for skycast-gateway, the weather, trip and price prediction server
// ABOUTME: Provides serve, init, health, ready and token commands

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/skycast-gateway/internal/auth"
	"github.com/2389/skycast-gateway/internal/config"
	"github.com/2389/skycast-gateway/internal/gateway"
	"github.com/2389/skycast-gateway/internal/toolhost"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                          _
 ___| | ___   _  ___ __ _ ___| |_
/ __| |/ / | | |/ __/ _' / __| __|
\__ \   <| |_| | (_| (_| \__ \ |_
|___/_|\_\\__, |\___\__,_|___/\__|
          |___/
`

// defaultTokenTTL is the lifetime of tokens minted by the token command.
const defaultTokenTTL = 30 * 24 * time.Hour

// getConfigPath returns the path to the gateway config file.
// Priority: SKYCAST_CONFIG env var > XDG_CONFIG_HOME/skycast/gateway.yaml > ~/.config/skycast/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SKYCAST_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "skycast", "gateway.yaml")
}

// getDataPath returns the path to the skycast data directory.
// Priority: XDG_DATA_HOME/skycast > ~/.local/share/skycast
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "skycast")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: skycast-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                              Start the gateway server")
		fmt.Println("  init                               Create a new config file interactively")
		fmt.Println("  health                             Check gateway health")
		fmt.Println("  ready                              Show tool host proxy status")
		fmt.Println("  token --subject NAME [--ttl D]     Mint an API token")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "ready":
		err = runReady(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "version":
		fmt.Println(version)
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

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)
	toolhost.Version = version

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Runs:      %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Policy:    %s\n", cfg.Pipeline.Policy)

	green.Print("    ▶ ")
	fmt.Printf("Tools:     ")
	if cfg.Proxy.Enabled {
		cyan.Print(strings.Join(append([]string{cfg.Proxy.Command}, cfg.Proxy.Args...), " "))
	} else {
		gray.Print("local only")
	}
	fmt.Println()

	if cfg.Auth.JWTSecret == "" {
		green.Print("    ▶ ")
		fmt.Printf("Auth:      ")
		yellow.Println("disabled")
	}

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

	logger.Info("starting skycast-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"proxy", cfg.Proxy.Enabled,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// fetch GETs path on the configured gateway and returns the body.
func fetch(ctx context.Context, path string) (int, []byte, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return 0, nil, fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func runHealth(ctx context.Context) error {
	status, _, err := fetch(ctx, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}

	fmt.Println("healthy")
	return nil
}

func runReady(ctx context.Context) error {
	_, body, err := fetch(ctx, "/health/ready")
	if err != nil {
		return fmt.Errorf("ready check failed: %w", err)
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// tokenArgs are the parsed flags of the token command.
type tokenArgs struct {
	subject string
	ttl     time.Duration
}

// parseTokenArgs accepts "--flag value" and "--flag=value" forms.
func parseTokenArgs(args []string) (tokenArgs, error) {
	out := tokenArgs{ttl: defaultTokenTTL}
	var ttlRaw string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--subject requires a value")
			}
			out.subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			out.subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--ttl requires a value")
			}
			ttlRaw = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ttl="):
			ttlRaw = strings.TrimPrefix(arg, "--ttl=")
		case strings.HasPrefix(arg, "-"):
			return out, fmt.Errorf("unknown flag: %s", arg)
		default:
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	out.subject = strings.TrimSpace(out.subject)
	if out.subject == "" {
		return out, fmt.Errorf("--subject flag is required")
	}
	if len(out.subject) > 100 {
		return out, fmt.Errorf("subject exceeds maximum length of 100 characters")
	}

	if ttlRaw != "" {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return out, fmt.Errorf("invalid --ttl: %w", err)
		}
		if ttl <= 0 {
			return out, fmt.Errorf("--ttl must be positive")
		}
		out.ttl = ttl
	}
	return out, nil
}

// runToken mints a bearer token signed with auth.jwt_secret.
func runToken(args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(parsed.subject, parsed.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	expiresAt := time.Now().Add(parsed.ttl)
	fmt.Fprintf(os.Stderr, "token for %s expires %s\n", parsed.subject, expiresAt.Format("Jan 02, 2006 15:04"))
	fmt.Println(token)
	return nil
}
