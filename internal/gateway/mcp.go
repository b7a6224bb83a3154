// ABOUTME: Streamable HTTP MCP endpoint for external agents
// ABOUTME: Serves the local capabilities with the same tool surface as skycast-tools

package gateway

import (
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/2389/skycast-gateway/internal/capability"
	"github.com/2389/skycast-gateway/internal/toolhost"
)

// newMCPHandler exposes local over MCP Streamable HTTP. Calls go straight to
// the in-process capabilities, never through the stdio proxy.
func newMCPHandler(local []capability.Capability) (http.Handler, error) {
	host, err := toolhost.New(local...)
	if err != nil {
		return nil, fmt.Errorf("creating MCP tool host: %w", err)
	}
	return server.NewStreamableHTTPServer(host), nil
}
