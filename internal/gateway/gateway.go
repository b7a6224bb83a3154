// ABOUTME: Gateway that wires capabilities, the tool host proxy and the run log into HTTP handlers
// ABOUTME: Owns the proxy client, session service and listener lifecycle

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/skycast-gateway/internal/activities"
	"github.com/2389/skycast-gateway/internal/auth"
	"github.com/2389/skycast-gateway/internal/capability"
	"github.com/2389/skycast-gateway/internal/config"
	"github.com/2389/skycast-gateway/internal/pipeline"
	"github.com/2389/skycast-gateway/internal/predict"
	"github.com/2389/skycast-gateway/internal/proxy"
	"github.com/2389/skycast-gateway/internal/resolver"
	"github.com/2389/skycast-gateway/internal/session"
	"github.com/2389/skycast-gateway/internal/store"
	"github.com/2389/skycast-gateway/internal/toolhost"
	"github.com/2389/skycast-gateway/internal/weather"
)

// pruneInterval is how often runs older than the retention window are deleted.
const pruneInterval = time.Hour

// Gateway serves the trip, prediction and streaming endpoints.
type Gateway struct {
	config      *config.Config
	store       store.RunStore
	proxy       *proxy.Client
	resolver    *resolver.Resolver
	runner      *pipeline.Runner
	sessions    *session.Service
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// streamCtx is cancelled at shutdown to close open streams, which
	// http.Server.Shutdown does not track.
	streamCtx    context.Context
	cancelStream context.CancelFunc
	streams      sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// Deps overrides components New would otherwise build from the config.
type Deps struct {
	// Store replaces the SQLite run log.
	Store store.RunStore
	// Local replaces the built-in weather, predict and activities capabilities.
	Local []capability.Capability
	// Proxy replaces the stdio tool host client. It is used even when
	// proxy.enabled is false.
	Proxy *proxy.Client
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	return NewWithDeps(cfg, Deps{}, logger)
}

// NewWithDeps creates a Gateway, taking any non-nil component from deps.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := pipeline.ParsePolicy(cfg.Pipeline.Policy)
	if err != nil {
		return nil, err
	}

	runStore := deps.Store
	if runStore == nil {
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("creating store: %w", err)
		}
		runStore = s
	}

	local := deps.Local
	if local == nil {
		local = LocalCapabilities(cfg)
	}

	proxyClient := deps.Proxy
	if proxyClient == nil && cfg.Proxy.Enabled {
		proxyClient = proxy.New(proxy.Config{
			Dialer:          proxy.StdioDialer(cfg.Proxy.Command, cfg.Proxy.Args, cfg.Proxy.Env),
			Name:            "skycast-gateway",
			Version:         toolhost.Version,
			StartTimeout:    cfg.Proxy.StartTimeout,
			CallTimeout:     cfg.Proxy.CallTimeout,
			ShutdownTimeout: cfg.Proxy.ShutdownTimeout,
			Logger:          logger.With("component", "proxy"),
		})
	}

	resolverCfg := resolver.Config{
		Local:     local,
		ToolNames: toolhost.ToolNames,
		Logger:    logger.With("component", "resolver"),
	}
	if proxyClient != nil {
		resolverCfg.Proxy = proxyClient
	}
	res := resolver.New(resolverCfg)

	streamCtx, cancelStream := context.WithCancel(context.Background())
	gw := &Gateway{
		config:   cfg,
		store:    runStore,
		proxy:    proxyClient,
		resolver: res,
		runner:   pipeline.NewRunner(res, policy, logger.With("component", "pipeline")),
		sessions: session.NewService(session.Config{
			AppName: cfg.Session.AppName,
			MaxLive: cfg.Session.MaxLive,
		}),
		logger:       logger.With("component", "gateway"),
		streamCtx:    streamCtx,
		cancelStream: cancelStream,
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)

	if err := gw.registerAPIRoutes(mux, local); err != nil {
		cancelStream()
		_ = runStore.Close()
		return nil, err
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// LocalCapabilities builds the in-process implementations of every capability.
func LocalCapabilities(cfg *config.Config) []capability.Capability {
	return []capability.Capability{
		weather.New(weather.Config{
			APIKey:            cfg.Weather.APIKey,
			BaseURL:           cfg.Weather.BaseURL,
			RequestsPerMinute: cfg.Weather.RequestsPerMinute,
			Timeout:           cfg.Weather.Timeout,
		}),
		predict.New(predict.NewYahooSource(cfg.Market.BaseURL, cfg.Market.Timeout)),
		activities.New(nil),
	}
}

// registerAPIRoutes mounts the API behind the auth middleware. Without a
// jwt_secret every caller is anonymous.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, local []capability.Capability) error {
	mwCfg := auth.MiddlewareConfig{
		Required:       g.config.Auth.Required,
		DefaultSubject: g.config.Session.DefaultUser,
	}
	if g.config.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
		if err != nil {
			return fmt.Errorf("creating HTTP JWT verifier: %w", err)
		}
		mwCfg.Verifier = verifier
		g.logger.Info("HTTP auth middleware enabled", "required", g.config.Auth.Required)
	} else {
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
	authMiddleware := auth.Middleware(mwCfg)

	mux.Handle("POST /api/trip", authMiddleware(http.HandlerFunc(g.handleTrip)))
	mux.Handle("POST /api/predict", authMiddleware(http.HandlerFunc(g.handlePredict)))
	mux.Handle("GET /api/runs", authMiddleware(http.HandlerFunc(g.handleListRuns)))
	mux.Handle("GET /api/runs/{id}", authMiddleware(http.HandlerFunc(g.handleGetRun)))
	mux.Handle("GET /ws/predict", authMiddleware(http.HandlerFunc(g.handlePredictStream)))

	if g.config.Server.MCP {
		h, err := newMCPHandler(local)
		if err != nil {
			return err
		}
		mux.Handle("/mcp", authMiddleware(h))
		g.logger.Info("MCP endpoint enabled", "path", "/mcp")
	}
	return nil
}

// Handler returns the HTTP handler serving every route.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// StartProxy connects to the tool host. A failure is logged and the gateway
// keeps serving with local capabilities.
func (g *Gateway) StartProxy(ctx context.Context) {
	if g.proxy == nil {
		g.logger.Info("tool host proxy disabled, using local capabilities")
		return
	}
	if err := g.proxy.Start(ctx); err != nil {
		g.logger.Warn("tool host proxy unavailable", "error", err)
	}
}

// Run starts the proxy and the HTTP server and blocks until ctx is cancelled
// or the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.StartProxy(ctx)

	httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	go g.pruneLoop(g.config.Database.Retention)

	errCh := g.startServer(httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// pruneLoop deletes runs older than retention until shutdown.
func (g *Gateway) pruneLoop(retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		g.pruneRuns(retention)
		select {
		case <-g.streamCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (g *Gateway) pruneRuns(retention time.Duration) {
	ctx, cancel := context.WithTimeout(g.streamCtx, 30*time.Second)
	defer cancel()
	n, err := g.store.PruneRuns(ctx, time.Now().Add(-retention))
	if err != nil {
		if g.streamCtx.Err() == nil {
			g.logger.Warn("pruning run log", "error", err)
		}
		return
	}
	if n > 0 {
		g.logger.Info("pruned run log", "deleted", n, "retention", retention)
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, closes open streams, disconnects the tool
// host and closes the store. Later calls return the first call's result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown(ctx)
	})
	return g.shutdownErr
}

func (g *Gateway) shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	g.cancelStream()
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	streamsDone := make(chan struct{})
	go func() {
		g.streams.Wait()
		close(streamsDone)
	}()
	select {
	case <-streamsDone:
	case <-ctx.Done():
		g.logger.Warn("streams still open at shutdown deadline")
	}

	if g.proxy != nil {
		g.proxy.Stop()
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ReadyResponse is the body of GET /health/ready.
type ReadyResponse struct {
	Status       string      `json:"status"`
	Policy       string      `json:"policy"`
	LiveSessions int         `json:"live_sessions"`
	Proxy        ProxyStatus `json:"proxy"`
}

// ProxyStatus describes the tool host connection.
type ProxyStatus struct {
	Enabled bool     `json:"enabled"`
	State   string   `json:"state"`
	Tools   []string `json:"tools"`
	Error   string   `json:"error,omitempty"`
}

// handleReady always returns 200: local capabilities keep the gateway usable
// whatever the proxy state is. The body reports that state.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Status:       "ready",
		Policy:       string(g.runner.Policy()),
		LiveSessions: g.sessions.Live(),
		Proxy:        ProxyStatus{State: proxy.StateDisconnected.String(), Tools: []string{}},
	}
	if g.proxy != nil {
		resp.Proxy.Enabled = true
		resp.Proxy.State = g.proxy.State().String()
		if tools := g.proxy.Tools(); tools != nil {
			resp.Proxy.Tools = tools
		}
		if err := g.proxy.Err(); err != nil {
			resp.Proxy.Error = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
