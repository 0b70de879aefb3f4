package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
)

// SessionCookie carries the host application's session token.
const SessionCookie = "growen_token"

// SessionClaims is the payload of a host session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
}

// SessionTokenProvider validates HS256 session tokens issued by the host
// application, read from the growen_token cookie or an Authorization
// Bearer header.
type SessionTokenProvider struct {
	secret []byte
	now    func() time.Time
}

// NewSessionTokenProvider returns a provider; an empty secret disables it.
func NewSessionTokenProvider(secret string) *SessionTokenProvider {
	return &SessionTokenProvider{secret: []byte(secret), now: time.Now}
}

func (p *SessionTokenProvider) Name() string  { return "session_jwt" }
func (p *SessionTokenProvider) Enabled() bool { return len(p.secret) > 0 }

// Identify returns (nil, nil) when the request carries no token.
func (p *SessionTokenProvider) Identify(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	raw := sessionToken(r)
	if raw == "" {
		return nil, nil
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid session token: missing subject")
	}

	id := &contracts.Identity{
		Subject:   claims.Subject,
		SessionID: claims.SessionID,
		Provider:  p.Name(),
		Role:      normalizeRole(claims.Role),
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// IssueSessionToken signs a session token. Used by tests and local tooling;
// production tokens come from the host application.
func IssueSessionToken(secret, subject, role, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      role,
		SessionID: sessionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
