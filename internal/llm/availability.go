package llm

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultAvailabilityTTL = 30 * time.Second
	probeTimeout           = 3 * time.Second
)

// Availability caches whether the local daemon is reachable. One instance is
// shared by every session; reads never block on a probe and at most one probe
// runs at a time.
type Availability struct {
	mu        sync.RWMutex
	online    bool
	checkedAt time.Time

	probeMu   sync.Mutex
	ollamaURL string
	ttl       time.Duration
	client    *http.Client
	now       func() time.Time
}

// NewAvailability builds a cache probing {ollamaURL}/api/tags. An empty URL
// means the local backend is never online.
func NewAvailability(ollamaURL string, ttl time.Duration) *Availability {
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	return &Availability{
		ollamaURL: strings.TrimRight(ollamaURL, "/"),
		ttl:       ttl,
		client:    &http.Client{Timeout: probeTimeout},
		now:       time.Now,
	}
}

// LocalOnline returns the cached state without probing.
func (a *Availability) LocalOnline() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.online
}

// Stale reports whether the cached state is older than the TTL.
func (a *Availability) Stale() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.checkedAt.IsZero() || a.now().Sub(a.checkedAt) >= a.ttl
}

// Refresh probes the daemon when the cache is stale. If another goroutine is
// already probing, Refresh returns immediately and callers use the old value.
func (a *Availability) Refresh(ctx context.Context) {
	if a == nil || !a.Stale() {
		return
	}
	if !a.probeMu.TryLock() {
		return
	}
	defer a.probeMu.Unlock()

	if !a.Stale() {
		return
	}

	online := a.probe(ctx)

	a.mu.Lock()
	changed := online != a.online || a.checkedAt.IsZero()
	a.online = online
	a.checkedAt = a.now()
	a.mu.Unlock()

	if changed {
		log.Info().Bool("online", online).Str("url", a.ollamaURL).Msg("Local model backend availability")
	}
}

// Set overrides the cached state, for tests and operator overrides.
func (a *Availability) Set(online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.online = online
	a.checkedAt = a.now()
}

func (a *Availability) probe(ctx context.Context) bool {
	if a.ollamaURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.ollamaURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Local model backend probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
