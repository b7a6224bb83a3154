// ABOUTME: Caller identity carried through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Identity is the caller of a request.
type Identity struct {
	Subject string
	// Anonymous is set when no token was presented.
	Anonymous bool
}

type identityKey struct{}

// WithIdentity returns a new context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller identity, or nil if none was attached.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Subject returns the caller's subject, or fallback when ctx carries none.
func Subject(ctx context.Context, fallback string) string {
	if id := FromContext(ctx); id != nil && id.Subject != "" {
		return id.Subject
	}
	return fallback
}
