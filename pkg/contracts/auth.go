// Package contracts defines the caller identity and the pluggable identity providers.
//
// Authentication itself is owned by the host application. The orchestration
// core only consumes the outcome: an opaque role and an optional user id.
package contracts

import (
	"context"
	"net/http"
	"time"
)

// Known roles. Anything else is treated as a regular customer.
const (
	RoleAdmin        = "admin"
	RoleCollaborator = "colaborador"
	RoleClient       = "cliente"
	RoleGuest        = "guest"
)

// ── Identity ────────────────────────────────────────────────

// Identity represents the caller of a chat session.
type Identity struct {
	// Subject is the user identifier. Empty for anonymous callers.
	Subject string `json:"subject,omitempty"`

	// SessionID is the host application's session identifier, when known.
	SessionID string `json:"session_id,omitempty"`

	// Provider identifies which identity provider produced this identity.
	// Values: "session_jwt", "trusted_header", "anonymous"
	Provider string `json:"provider"`

	// Role is the opaque role issued by the host application.
	Role string `json:"role"`

	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Elevated reports whether the role may see internal identifiers and use
// restricted tools.
func (i *Identity) Elevated() bool {
	if i == nil {
		return false
	}
	return IsElevated(i.Role)
}

// IsElevated reports whether role is administrative.
func IsElevated(role string) bool {
	return role == RoleAdmin || role == RoleCollaborator
}

// Anonymous returns the identity used when no provider matched.
func Anonymous() *Identity {
	return &Identity{Provider: "anonymous", Role: RoleGuest}
}

// ── IdentityProvider ────────────────────────────────────────

// IdentityProvider extracts an Identity from an HTTP request.
//
// The chain pattern:
//   - Return (*Identity, nil) → identified, stop chain
//   - Return (nil, nil) → this provider doesn't handle this request, try next
//   - Return (nil, error) → credentials were present but invalid, reject
type IdentityProvider interface {
	Name() string
	Identify(ctx context.Context, r *http.Request) (*Identity, error)
	Enabled() bool
}
