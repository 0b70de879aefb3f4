// Package middleware provides request-context helpers shared by the HTTP
// layer and the chat front end.
package middleware

import (
	"context"

	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
)

type contextKey int

const (
	identityKey contextKey = iota
	sessionKey
)

// SetIdentity stores the caller identity. A nil identity leaves ctx as is.
func SetIdentity(ctx context.Context, identity *contracts.Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity never returns nil: requests that skipped authentication are
// anonymous guests.
func GetIdentity(ctx context.Context) *contracts.Identity {
	if v, ok := ctx.Value(identityKey).(*contracts.Identity); ok && v != nil {
		return v
	}
	return contracts.Anonymous()
}

// IsElevated reports whether the caller may see internal identifiers.
func IsElevated(ctx context.Context) bool {
	return GetIdentity(ctx).Elevated()
}

// GetSessionKey returns the chat session key, or "" when none was resolved.
func GetSessionKey(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey).(string)
	return v
}

func SetSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKey, key)
}
