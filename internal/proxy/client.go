// ABOUTME: Proxy client owning the single MCP connection to the external tool host
// ABOUTME: Start/Call/Stop lifecycle with recorded failures, per-call timeouts and bounded shutdown

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/skycast-gateway/internal/capability"
)

// Default timings.
const (
	DefaultStartTimeout    = 30 * time.Second
	DefaultCallTimeout     = 20 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Dialer opens a started, not yet initialized MCP client.
type Dialer func(ctx context.Context) (*client.Client, error)

// StdioDialer spawns command and speaks MCP over its stdin/stdout.
// NewStdioMCPClient starts the subprocess itself.
func StdioDialer(command string, args, env []string) Dialer {
	return func(ctx context.Context) (*client.Client, error) {
		c, err := client.NewStdioMCPClient(command, env, args...)
		if err != nil {
			return nil, fmt.Errorf("spawning %s: %w", command, err)
		}
		return c, nil
	}
}

// Config configures a Client.
type Config struct {
	Dialer          Dialer
	Name            string
	Version         string
	StartTimeout    time.Duration
	CallTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Client manages one MCP connection. It is safe for concurrent use. Calls
// are serialized: at most one tools/call is outstanding on the transport.
type Client struct {
	dial            Dialer
	name            string
	version         string
	startTimeout    time.Duration
	callTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	state   State
	err     error
	started bool
	stopped bool
	mc      *client.Client
	tools   []string

	inflight   sync.WaitGroup
	sem        chan struct{}
	life       context.Context
	cancelLife context.CancelFunc
}

// New creates a disconnected client.
func New(cfg Config) *Client {
	life, cancel := context.WithCancel(context.Background())
	c := &Client{
		dial:            cfg.Dialer,
		name:            cfg.Name,
		version:         cfg.Version,
		startTimeout:    cfg.StartTimeout,
		callTimeout:     cfg.CallTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          cfg.Logger,
		state:           StateDisconnected,
		sem:             make(chan struct{}, 1),
		life:            life,
		cancelLife:      cancel,
	}
	if c.name == "" {
		c.name = "skycast-gateway"
	}
	if c.version == "" {
		c.version = "dev"
	}
	if c.startTimeout == 0 {
		c.startTimeout = DefaultStartTimeout
	}
	if c.callTimeout == 0 {
		c.callTimeout = DefaultCallTimeout
	}
	if c.shutdownTimeout == 0 {
		c.shutdownTimeout = DefaultShutdownTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the recorded connect failure, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Tools returns the tool names discovered during the handshake.
func (c *Client) Tools() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tools)
}

// HasTool reports whether the connected host advertised name.
func (c *Client) HasTool(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected && slices.Contains(c.tools, name)
}

// Start connects to the tool host and performs the initialize and tools/list
// handshake. It runs at most once: once the handshake settles, later calls
// return the recorded outcome, and calls made while it is still running get
// ErrAlreadyStarted. Stop cancels a handshake in progress. A failure leaves the client in StateFailed and is returned as a
// *ConnectError; callers are expected to log it and carry on without proxying.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		defer c.mu.Unlock()
		switch c.state {
		case StateConnected:
			return nil
		case StateFailed:
			return c.err
		default:
			return ErrAlreadyStarted
		}
	}
	c.started = true
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.dial == nil {
		c.state = StateFailed
		c.err = &ConnectError{Err: errors.New("no dialer configured")}
		c.mu.Unlock()
		return c.err
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.logger.Info("connecting to tool host")
	mc, tools, err := c.connect(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		if mc != nil {
			_ = mc.Close()
		}
		c.state = StateDisconnected
		return ErrStopped
	}
	if err != nil {
		c.state = StateFailed
		c.err = &ConnectError{Err: err}
		c.logger.Warn("tool host unavailable, using local capabilities", "error", err)
		return c.err
	}

	c.mc = mc
	c.tools = tools
	c.state = StateConnected
	c.logger.Info("tool host connected", "tools", len(tools), "names", tools)
	return nil
}

func (c *Client) connect(ctx context.Context) (*client.Client, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	mc, err := c.dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: c.name, Version: c.version}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		_ = mc.Close()
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}

	list, err := mc.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = mc.Close()
		return nil, nil, fmt.Errorf("listing tools: %w", err)
	}
	names := make([]string, 0, len(list.Tools))
	for _, t := range list.Tools {
		names = append(names, t.Name)
	}
	slices.Sort(names)
	return mc, names, nil
}

// Call invokes a tool on the host and returns its decoded wire payload.
// Calls made while the client is not connected fail with ErrNotConnected.
// Each call is bounded by the configured call timeout and by Stop.
func (c *Client) Call(ctx context.Context, tool string, args map[string]any) (capability.Payload, error) {
	mc, err := c.acquire()
	if err != nil {
		return nil, &CallError{Tool: tool, Err: err}
	}
	defer c.inflight.Done()

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &CallError{Tool: tool, Err: ctx.Err()}
	case <-c.life.Done():
		return nil, &CallError{Tool: tool, Err: ErrNotConnected}
	}
	defer func() { <-c.sem }()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	start := time.Now()
	res, err := mc.CallTool(callCtx, req)
	if cerr := c.callContextErr(ctx, callCtx); cerr != nil {
		c.logger.Warn("tool call aborted", "tool", tool, "duration", time.Since(start), "error", cerr)
		return nil, &CallError{Tool: tool, Err: cerr}
	}
	if err != nil {
		return nil, &CallError{Tool: tool, Err: err}
	}

	payload, err := decode(res)
	if err != nil {
		return nil, &CallError{Tool: tool, Err: err}
	}
	c.logger.Debug("tool call finished", "tool", tool, "duration", time.Since(start))
	return payload, nil
}

// acquire registers an in-flight call while the client is connected.
func (c *Client) acquire() (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.mc == nil {
		return nil, ErrNotConnected
	}
	c.inflight.Add(1)
	return c.mc, nil
}

// callContextErr classifies why callCtx ended, if it did.
func (c *Client) callContextErr(parent, callCtx context.Context) error {
	switch {
	case callCtx.Err() == nil:
		return nil
	case parent.Err() != nil:
		return parent.Err()
	case c.life.Err() != nil:
		return ErrNotConnected
	default:
		return fmt.Errorf("%w after %s", ErrCallTimeout, c.callTimeout)
	}
}

// decode extracts the JSON object carried by a tool result.
func decode(res *mcp.CallToolResult) (capability.Payload, error) {
	if res == nil {
		return nil, ErrMalformedResponse
	}
	text := ""
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			text = tc.Text
			break
		}
	}
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, fmt.Errorf("tool error: %s", text)
	}
	if text == "" {
		if m, ok := res.StructuredContent.(map[string]any); ok {
			return capability.Payload(m), nil
		}
		return nil, ErrMalformedResponse
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil || payload == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(text, 80))
	}
	return capability.Payload(payload), nil
}

// Stop disconnects from the tool host. It is idempotent and safe to call
// before Start or while calls are in flight: in-flight calls get up to the
// shutdown timeout to finish, then they are cancelled and the transport is
// closed.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	mc := c.mc
	c.mc = nil
	c.tools = nil
	if c.state != StateConnecting {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if mc == nil {
		c.cancelLife()
		return
	}

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.shutdownTimeout):
		c.logger.Warn("tool calls still running at shutdown, cancelling", "timeout", c.shutdownTimeout)
	}

	c.cancelLife()
	if err := mc.Close(); err != nil {
		c.logger.Warn("closing tool host connection", "error", err)
	}
	c.logger.Info("tool host disconnected")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
