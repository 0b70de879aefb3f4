// Package history persists both sides of every chat exchange and an audit
// trail of tool invocations. Writes are best effort: callers log failures
// and carry on.
package history

import (
	"context"
	"time"

	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

// DefaultRecentLimit bounds Recent when no limit is given.
const DefaultRecentLimit = 20

// Store is the history persistence contract.
type Store interface {
	// SaveMessage appends one side of an exchange.
	SaveMessage(ctx context.Context, msg *models.HistoryMessage) error

	// SaveAudit appends one audit event.
	SaveAudit(ctx context.Context, ev *models.AuditEvent) error

	// Recent returns the last limit messages of a session, oldest first.
	Recent(ctx context.Context, sessionKey string, limit int) ([]models.HistoryMessage, error)

	// Audit returns the audit events of a session, oldest first.
	Audit(ctx context.Context, sessionKey string, limit int) ([]models.AuditEvent, error)

	// Prune deletes messages and audit events created before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (PruneStats, error)

	Close() error
}

// PruneStats counts the rows removed by one Prune call.
type PruneStats struct {
	Messages int
	Audit    int
}
