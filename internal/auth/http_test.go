// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers header and query tokens, anonymous access and required mode

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, cfg MiddlewareConfig, req *http.Request) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var got *Identity
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, got
}

func TestMiddleware_HeaderToken(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Generate("alice", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/trip", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, id := serve(t, MiddlewareConfig{Verifier: v, Required: true}, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, id)
	assert.Equal(t, "alice", id.Subject)
	assert.False(t, id.Anonymous)
}

func TestMiddleware_QueryToken(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Generate("bob", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws/predict?token="+token, nil)
	rec, id := serve(t, MiddlewareConfig{Verifier: v, Required: true}, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, id)
	assert.Equal(t, "bob", id.Subject)
}

func TestMiddleware_AnonymousAllowed(t *testing.T) {
	v := newVerifier(t)
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)

	rec, id := serve(t, MiddlewareConfig{Verifier: v, DefaultSubject: "anonymous"}, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, id)
	assert.True(t, id.Anonymous)
	assert.Equal(t, "anonymous", id.Subject)
}

func TestMiddleware_NoVerifier(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("Authorization", "Bearer whatever")

	rec, id := serve(t, MiddlewareConfig{DefaultSubject: "user_123"}, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, id)
	assert.Equal(t, "user_123", id.Subject)
}

func TestMiddleware_Rejections(t *testing.T) {
	v := newVerifier(t)
	expired, err := v.Generate("alice", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name     string
		required bool
		header   string
		wantMsg  string
	}{
		{"missing when required", true, "", "missing authorization header"},
		{"basic auth", false, "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", false, "Bearer ", "empty token"},
		{"garbage", false, "Bearer garbage", "invalid token"},
		{"expired", false, "Bearer " + expired, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, id := serve(t, MiddlewareConfig{Verifier: v, Required: tt.required}, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, id)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantMsg, body["detail"])
		})
	}
}
