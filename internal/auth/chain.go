// Package auth resolves the caller of a chat session.
//
// Authentication is owned by the host application. This package only reads
// what the host already established, through a chain of providers:
//   - SessionTokenProvider: HS256 session token from a cookie or Bearer header
//   - TrustedHeaderProvider: identity headers set by a trusted reverse proxy
//
// Callers no provider recognizes are anonymous guests.
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
)

// ProviderChain walks registered providers in order until one returns an
// Identity. Providers may be registered at any time.
type ProviderChain struct {
	mu        sync.RWMutex
	providers []contracts.IdentityProvider
}

// NewProviderChain creates a chain holding providers.
func NewProviderChain(providers ...contracts.IdentityProvider) *ProviderChain {
	c := &ProviderChain{}
	for _, p := range providers {
		c.RegisterProvider(p)
	}
	return c
}

// RegisterProvider adds a provider to the end of the chain.
func (c *ProviderChain) RegisterProvider(provider contracts.IdentityProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, provider)
	log.Info().
		Str("provider", provider.Name()).
		Bool("enabled", provider.Enabled()).
		Msg("🔑 Identity provider registered")
}

// Identify walks the chain:
//   - (*Identity, nil) from a provider stops the walk
//   - (nil, nil) moves on to the next provider
//   - (nil, error) rejects the request
//
// When no provider matches the caller is anonymous.
func (c *ProviderChain) Identify(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	c.mu.RLock()
	providers := make([]contracts.IdentityProvider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, p := range providers {
		if !p.Enabled() {
			continue
		}
		identity, err := p.Identify(ctx, r)
		if err != nil {
			log.Debug().
				Str("provider", p.Name()).
				Err(err).
				Msg("Identity provider rejected request")
			return nil, err
		}
		if identity != nil {
			log.Debug().
				Str("provider", p.Name()).
				Str("subject", identity.Subject).
				Str("role", identity.Role).
				Msg("Caller identified")
			return identity, nil
		}
	}
	return contracts.Anonymous(), nil
}

// ListProviders returns the registered provider names.
func (c *ProviderChain) ListProviders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// normalizeRole maps unknown roles to the customer role.
func normalizeRole(role string) string {
	switch role {
	case contracts.RoleAdmin, contracts.RoleCollaborator, contracts.RoleClient, contracts.RoleGuest:
		return role
	case "":
		return contracts.RoleGuest
	}
	return contracts.RoleClient
}
