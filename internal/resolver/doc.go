// ABOUTME: Package resolver picks, per call, between the proxied tool host and local capabilities
// ABOUTME: Proxy is used only while connected and advertising the tool; local otherwise

// Package resolver implements the fallback policy of the gateway.
//
// Every Resolve re-reads the proxy state, so a proxy that fails or stops
// mid-process sends later calls to the local implementation without any
// caching. A proxied call that fails is reported as a Failure result; it is
// not retried locally.
package resolver
