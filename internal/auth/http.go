// ABOUTME: HTTP middleware for JWT authentication on API and stream endpoints
// ABOUTME: Extracts the token from the Authorization header or ?token= and adds the identity to context

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// requestToken returns the token from the header, falling back to the
// "token" query parameter. present is false when neither was supplied.
func requestToken(r *http.Request) (token string, present bool, errMsg string) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, errMsg = extractBearerToken(h)
		return token, true, errMsg
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return q, true, ""
	}
	return "", false, "missing authorization header"
}

// MiddlewareConfig configures Middleware.
type MiddlewareConfig struct {
	// Verifier may be nil when no secret is configured; every request is
	// then anonymous and presented tokens are ignored.
	Verifier TokenVerifier
	// Required rejects requests that carry no token.
	Required bool
	// DefaultSubject names anonymous callers.
	DefaultSubject string
}

// Middleware creates an HTTP middleware that validates JWTs and attaches the
// caller Identity to the request context.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			anonymous := &Identity{Subject: cfg.DefaultSubject, Anonymous: true}
			if cfg.Verifier == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), anonymous)))
				return
			}

			token, present, errMsg := requestToken(r)
			if !present && !cfg.Required {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), anonymous)))
				return
			}
			if errMsg != "" {
				writeUnauthorized(w, errMsg)
				return
			}

			subject, err := cfg.Verifier.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, ErrExpiredToken) {
					msg = "token expired"
				}
				writeUnauthorized(w, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &Identity{Subject: subject})))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="skycast-gateway"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}
