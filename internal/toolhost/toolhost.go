// ABOUTME: MCP server exposing local capabilities as tools for skycast-tools
// ABOUTME: Each tool returns the capability wire envelope as one JSON text content

// Package toolhost exposes local capabilities as MCP tools.
//
// It is the composition root of the skycast-tools binary: the gateway's proxy
// client spawns that binary and talks MCP over stdio. Each tool returns the
// capability wire form ({"status": ...}) as a single JSON text content, so a
// failed capability is still a successful MCP call.
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/2389/skycast-gateway/internal/capability"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Tool names advertised by the host, keyed by capability name.
var ToolNames = map[string]string{
	capability.Weather:           "get_weather",
	capability.Predict:           "predict_stock_price",
	capability.SuggestActivities: "suggest_activities",
}

// New creates the MCP server and registers one tool per capability.
// Capabilities without a known tool definition are rejected.
func New(caps ...capability.Capability) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		"skycast-tools",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	for _, c := range caps {
		tool, err := NewTool(c)
		if err != nil {
			return nil, err
		}
		s.AddTool(tool.Definition(), tool.Handle)
	}
	return s, nil
}

// Tool adapts a capability to an MCP tool.
type Tool struct {
	capability capability.Capability
	definition mcp.Tool
}

// NewTool builds the MCP tool for a capability.
func NewTool(c capability.Capability) (*Tool, error) {
	def, ok := definition(c.Name())
	if !ok {
		return nil, fmt.Errorf("no tool definition for capability %q", c.Name())
	}
	return &Tool{capability: c, definition: def}, nil
}

// Definition returns the MCP tool definition.
func (t *Tool) Definition() mcp.Tool {
	return t.definition
}

// Handle invokes the capability and returns its wire form as JSON text.
func (t *Tool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := t.capability.Invoke(ctx, capability.NewRequest(t.capability.Name(), req.GetArguments()))
	body, err := json.Marshal(res.Wire())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func definition(name string) (mcp.Tool, bool) {
	switch name {
	case capability.Weather:
		return mcp.NewTool(ToolNames[name],
			mcp.WithDescription("Fetches real-time weather data for a given location."),
			mcp.WithString("location",
				mcp.Required(),
				mcp.Description("City name, e.g. Chicago"),
			),
		), true
	case capability.Predict:
		return mcp.NewTool(ToolNames[name],
			mcp.WithDescription("Predicts the next closing price for a ticker using historical prices and weather data."),
			mcp.WithString("ticker",
				mcp.Required(),
				mcp.Description("Stock ticker symbol, e.g. ADM"),
			),
			mcp.WithObject("weather_data",
				mcp.Description("Weather payload returned by get_weather"),
			),
		), true
	case capability.SuggestActivities:
		return mcp.NewTool(ToolNames[name],
			mcp.WithDescription("Suggests activities that match the weather, the traveller's interests and budget."),
			mcp.WithObject("weather_data",
				mcp.Description("Weather payload returned by get_weather"),
			),
			mcp.WithArray("interests",
				mcp.Description("Interests such as hiking or museum"),
				mcp.WithStringItems(),
			),
			mcp.WithNumber("budget",
				mcp.Required(),
				mcp.Description("Maximum cost per activity"),
			),
		), true
	default:
		return mcp.Tool{}, false
	}
}
