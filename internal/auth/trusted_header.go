package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
)

// Headers set by the trusted reverse proxy.
const (
	HeaderUserID      = "X-User-Id"
	HeaderUserRole    = "X-User-Role"
	HeaderSessionID   = "X-Session-Id"
	HeaderProxySecret = "X-Proxy-Secret"
)

// TrustedHeaderProvider accepts identity headers from a reverse proxy that
// proves itself with a shared secret.
type TrustedHeaderProvider struct {
	enabled bool
	secret  []byte
}

// NewTrustedHeaderProvider returns a provider. It is only enabled when
// trust is requested and a proxy secret is set.
func NewTrustedHeaderProvider(trust bool, proxySecret string) *TrustedHeaderProvider {
	return &TrustedHeaderProvider{
		enabled: trust && proxySecret != "",
		secret:  []byte(proxySecret),
	}
}

func (p *TrustedHeaderProvider) Name() string  { return "trusted_header" }
func (p *TrustedHeaderProvider) Enabled() bool { return p.enabled }

// Identify returns (nil, nil) when no role header is present.
func (p *TrustedHeaderProvider) Identify(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	role := r.Header.Get(HeaderUserRole)
	if role == "" {
		return nil, nil
	}
	got := []byte(r.Header.Get(HeaderProxySecret))
	if subtle.ConstantTimeCompare(got, p.secret) != 1 {
		return nil, errors.New("untrusted identity headers")
	}
	return &contracts.Identity{
		Subject:   r.Header.Get(HeaderUserID),
		SessionID: r.Header.Get(HeaderSessionID),
		Provider:  p.Name(),
		Role:      normalizeRole(role),
	}, nil
}
