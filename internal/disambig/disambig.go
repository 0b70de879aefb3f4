// Package disambig remembers pending clarifications per chat session so short
// follow-up replies ("sí", "el segundo", "no") can be interpreted without
// re-running full query classification.
//
// Entries live for a fixed TTL measured from creation and are evicted lazily
// on access. Returned entries are copies; callers never alias stored state.
package disambig

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is how long a pending clarification stays valid.
const DefaultTTL = 5 * time.Minute

// DeriveKey returns the session id when present, else a stable key derived
// from the client host and user agent.
func DeriveKey(sessionID, host, userAgent string) string {
	if sessionID != "" {
		return sessionID
	}
	sum := sha256.Sum256([]byte(host + "|" + userAgent))
	return "anon:" + hex.EncodeToString(sum[:])[:16]
}

// Option is one candidate offered to the user.
type Option struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

// Entry is the pending clarification context of one session key.
type Entry struct {
	Query      string    `json:"query"`
	Candidates []Option  `json:"candidates,omitempty"`
	Pending    bool      `json:"pending"`
	Prompted   bool      `json:"prompted"`
	LastIntent string    `json:"last_intent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeen   time.Time `json:"last_seen"`
}

func (e Entry) clone() Entry {
	if e.Candidates != nil {
		c := make([]Option, len(e.Candidates))
		copy(c, e.Candidates)
		e.Candidates = c
	}
	return e
}

func (e Entry) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

// Store is the keyed clarification memory shared by all sessions.
type Store interface {
	// Get returns a copy of the entry and refreshes its LastSeen.
	Get(ctx context.Context, key string) (Entry, bool)

	// Set stores e. A zero CreatedAt is stamped with the current time.
	Set(ctx context.Context, key string, e Entry)

	Clear(ctx context.Context, key string)

	// MarkPrompted flags the entry as already prompted. It reports whether
	// this call made the transition, so only one of several concurrent
	// turns observes true.
	MarkPrompted(ctx context.Context, key string) bool

	// MarkResolved evicts the entry. It reports whether the entry existed
	// and was still pending.
	MarkResolved(ctx context.Context, key string) bool
}
