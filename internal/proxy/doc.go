// Package proxy owns the gateway's single connection to the external tool
// host.
//
// # Transport
//
// The tool host is an MCP server (skycast-tools) spawned as a subprocess and
// spoken to over stdio with the mcp-go client. Start performs the MCP
// initialize handshake followed by tools/list discovery; the discovered tool
// names decide which capabilities the resolver may proxy.
//
// # Lifecycle
//
//	Disconnected --Start--> Connecting --ok--> Connected --Stop--> Disconnected
//	                                  \--err--> Failed
//
// A failed start is recorded, not fatal: the gateway keeps serving with local
// capabilities for the rest of the process. There is no reconnect.
//
// # Calls
//
// Call is only valid while Connected; otherwise it fails fast with
// ErrNotConnected. Every call has a timeout, and Stop bounds how long
// in-flight calls may keep the transport open. All call failures are
// *CallError values.
package proxy
