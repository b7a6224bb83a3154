// ABOUTME: Fallback resolver mapping capability names to proxy or local invokers
// ABOUTME: Direct() gives the always-local view used by the direct recompute path

package resolver

import (
	"context"
	"log/slog"
	"maps"

	"github.com/2389/skycast-gateway/internal/capability"
	"github.com/2389/skycast-gateway/internal/proxy"
)

// Source names where an invoker sends its call.
type Source string

const (
	SourceProxy   Source = "proxy"
	SourceLocal   Source = "local"
	SourceUnknown Source = "unknown"
)

// Invoker runs one capability call.
type Invoker interface {
	Invoke(ctx context.Context, req capability.Request) capability.Result
	Source() Source
}

// ProxyCaller is the slice of proxy.Client the resolver depends on.
type ProxyCaller interface {
	State() proxy.State
	HasTool(name string) bool
	Call(ctx context.Context, tool string, args map[string]any) (capability.Payload, error)
}

// Config configures a Resolver.
type Config struct {
	// Proxy may be nil, in which case every capability resolves locally.
	Proxy ProxyCaller
	Local []capability.Capability
	// ToolNames maps capability names to proxied tool names.
	ToolNames map[string]string
	Logger    *slog.Logger
}

// Resolver chooses an invoker per capability call.
type Resolver struct {
	proxy     ProxyCaller
	local     map[string]capability.Capability
	toolNames map[string]string
	direct    bool
	logger    *slog.Logger
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	local := make(map[string]capability.Capability, len(cfg.Local))
	for _, c := range cfg.Local {
		local[c.Name()] = c
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		proxy:     cfg.Proxy,
		local:     local,
		toolNames: maps.Clone(cfg.ToolNames),
		logger:    logger,
	}
}

// Direct returns a view of r that always resolves to local capabilities.
func (r *Resolver) Direct() *Resolver {
	d := *r
	d.direct = true
	return &d
}

// Resolve returns the invoker for a capability name.
func (r *Resolver) Resolve(name string) Invoker {
	if !r.direct && r.proxy != nil && r.proxy.State() == proxy.StateConnected {
		if tool, ok := r.toolNames[name]; ok && r.proxy.HasTool(tool) {
			return &proxyInvoker{proxy: r.proxy, tool: tool, logger: r.logger}
		}
	}
	if c, ok := r.local[name]; ok {
		return localInvoker{c}
	}
	return unknownInvoker(name)
}

type proxyInvoker struct {
	proxy  ProxyCaller
	tool   string
	logger *slog.Logger
}

func (p *proxyInvoker) Source() Source { return SourceProxy }

func (p *proxyInvoker) Invoke(ctx context.Context, req capability.Request) capability.Result {
	payload, err := p.proxy.Call(ctx, p.tool, req.Args())
	if err != nil {
		p.logger.Warn("proxied call failed", "capability", req.Name(), "tool", p.tool, "error", err)
		return capability.Failuref("%s failed via proxy: %v", req.Name(), err)
	}
	return capability.FromWire(payload)
}

type localInvoker struct {
	c capability.Capability
}

func (l localInvoker) Source() Source { return SourceLocal }

func (l localInvoker) Invoke(ctx context.Context, req capability.Request) capability.Result {
	return l.c.Invoke(ctx, req)
}

type unknownInvoker string

func (u unknownInvoker) Source() Source { return SourceUnknown }

func (u unknownInvoker) Invoke(context.Context, capability.Request) capability.Result {
	return capability.Failuref("unknown capability %q", string(u))
}
