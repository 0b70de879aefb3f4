// Package retention prunes conversation history and audit events older
// than the configured retention window.
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown. A failed cycle is logged and retried
// on the next tick.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/BioTRaX/Growen-sub001/internal/history"
)

// DefaultMaxAge is used when no retention window is configured.
const DefaultMaxAge = 30 * 24 * time.Hour

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Cutoff          time.Time
	MessagesDeleted int
	AuditDeleted    int
	Elapsed         time.Duration
}

// Janitor periodically deletes expired history rows.
type Janitor struct {
	store    history.Store
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// NewJanitor creates a janitor that runs every interval and keeps rows
// younger than maxAge.
func NewJanitor(s history.Store, interval, maxAge time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Janitor{
		store:    s,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Start runs the janitor. It blocks until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("max_age", j.maxAge).
		Msg("🧹 Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) (CycleStats, error) {
	start := j.now()
	stats := CycleStats{Cutoff: start.Add(-j.maxAge).UTC()}
	pruned, err := j.store.Prune(ctx, stats.Cutoff)
	stats.MessagesDeleted = pruned.Messages
	stats.AuditDeleted = pruned.Audit
	stats.Elapsed = time.Since(start)
	return stats, err
}

func (j *Janitor) runCycle(ctx context.Context) {
	stats, err := j.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Time("cutoff", stats.Cutoff).Msg("Retention cycle failed")
		}
		return
	}
	if stats.MessagesDeleted > 0 || stats.AuditDeleted > 0 {
		log.Info().
			Int("purged_messages", stats.MessagesDeleted).
			Int("purged_audit", stats.AuditDeleted).
			Time("cutoff", stats.Cutoff).
			Dur("elapsed", stats.Elapsed).
			Msg("Retention cycle complete")
	}
}
