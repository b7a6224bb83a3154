// Package auth provides API authentication for skycast-gateway.
//
// # JWT Tokens
//
// API clients authenticate with HS256 JWTs signed with the configured
// auth.jwt_secret (at least 32 bytes). The "sub" claim becomes the session
// user ID. Tokens are minted with `skycast-gateway token --subject NAME`.
//
// # HTTP Middleware
//
// Middleware reads the token from the Authorization header ("Bearer ...")
// or, for WebSocket clients that cannot set headers, the "token" query
// parameter. When auth is not required, requests without a token continue
// as the configured default user; a token that is present but invalid is
// always rejected.
//
// Handlers read the caller with FromContext.
package auth
