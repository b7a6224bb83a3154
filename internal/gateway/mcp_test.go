// ABOUTME: Tests for the Streamable HTTP MCP endpoint
// ABOUTME: Lists and calls tools through a real mcp-go HTTP client

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialMCP(t *testing.T, tg *testGateway, headers map[string]string) (*client.Client, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var opts []transport.StreamableHTTPCOption
	if headers != nil {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}
	c, err := client.NewStreamableHttpClient(tg.server.URL+"/mcp", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mcp-test", Version: "test"}
	_, err = c.Initialize(ctx, initReq)
	return c, err
}

func TestMCPEndpointServesLocalTools(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MCP = true
	tg := newTestGateway(t, cfg, Deps{})

	c, err := dialMCP(t, tg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	list, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"get_weather", "predict_stock_price", "suggest_activities"}, names)

	req := mcp.CallToolRequest{}
	req.Params.Name = "get_weather"
	req.Params.Arguments = map[string]any{"location": "Oslo"}
	res, err := c.CallTool(ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "Oslo", out["location"])
}

func TestMCPEndpointRequiresToken(t *testing.T) {
	secret := strings.Repeat("m", 32)
	cfg := testConfig()
	cfg.Server.MCP = true
	cfg.Auth.JWTSecret = secret
	cfg.Auth.Required = true
	tg := newTestGateway(t, cfg, Deps{})

	_, err := dialMCP(t, tg, nil)
	assert.Error(t, err)

	_, err = dialMCP(t, tg, map[string]string{"Authorization": "Bearer " + mustToken(t, secret, "carol")})
	assert.NoError(t, err)
}

func TestMCPEndpointDisabledByDefault(t *testing.T) {
	tg := newTestGateway(t, testConfig(), Deps{})

	resp, err := http.Post(tg.server.URL+"/mcp", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
