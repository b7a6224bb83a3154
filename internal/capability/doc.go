// Package capability defines the contract shared by every named unit of work
// the gateway can run: a Request carrying named arguments in, a Result out.
//
// # Results
//
// A Result is a tagged union. Success carries a Payload, Failure carries a
// reason string. Failures are ordinary values: capability implementations
// never return Go errors or panic past their boundary, they return
// Failure(...) instead.
//
// # Wire Format
//
// Results travel as JSON objects with a status discriminator:
//
//	{"status": "success", "temperature": 20, ..., "timestamp": "2026-01-02 15:04:05"}
//	{"status": "error", "error_message": "Missing OpenWeatherMap API key"}
//
// Wire and FromWire convert between the two representations. The same shape
// is used by the MCP tool host, the HTTP API and the WebSocket stream.
//
// # Names
//
// The gateway knows three capabilities: Weather, Predict and
// SuggestActivities. Each has a local implementation (packages weather,
// predict and activities) and may also be served by the proxied tool host.
package capability
