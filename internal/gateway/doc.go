// Package gateway orchestrates the skycast-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the skycast-gateway
// server. It owns the run log store, the single tool host proxy client, the
// fallback resolver, the pipeline runner and the session service, and
// serves them over HTTP.
//
// # Gateway Struct
//
//	type Gateway struct {
//	    config     *config.Config
//	    store      store.RunStore
//	    proxy      *proxy.Client     // nil when proxy.enabled is false
//	    resolver   *resolver.Resolver
//	    runner     *pipeline.Runner
//	    sessions   *session.Service
//	    httpServer *http.Server
//	    // ...
//	}
//
// # HTTP API
//
//   - POST /api/trip - Weather then activity suggestions for a destination
//   - POST /api/predict - Weather then next-close prediction for a ticker
//   - GET /api/runs - Recent run log, newest first
//   - GET /api/runs/{id} - One run log entry
//   - GET /ws/predict - WebSocket prediction stream
//   - GET /health - Liveness check
//   - GET /health/ready - Proxy state and discovered tools (always 200)
//   - /mcp - MCP Streamable HTTP over the local capabilities (server.mcp)
//
// API routes pass through auth.Middleware. Without a jwt_secret every caller
// is anonymous and runs under session.default_user.
//
// # Streaming
//
// Each connection owns one session. Every inbound frame {ticker, location}
// triggers a round that sends {weather, prediction, timestamp}. Between
// rounds the loop waits up to stream.interval: a new frame is served at
// once, otherwise the last valid request is re-run. Malformed frames and
// failed rounds produce a {status: "error", error_message} envelope and the
// connection stays open.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Run starts the proxy (a failure only logs), listens on TCP or a tailnet,
// prunes the run log past database.retention and shuts everything down when
// ctx ends.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown, health
//   - listen.go: TCP and tsnet listeners
//   - api.go: single-shot handlers and run recording
//   - stream.go: WebSocket round loop
//   - mcp.go: MCP endpoint for external agents
package gateway
