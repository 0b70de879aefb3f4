package history

import (
	"context"
	"sync"
	"time"

	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

// MemoryStore keeps history in append-only slices. Used when no database
// path is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []models.HistoryMessage
	audit    []models.AuditEvent
	nextID   int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) SaveMessage(_ context.Context, msg *models.HistoryMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemoryStore) SaveAudit(_ context.Context, ev *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ev.ID = m.nextID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	cp := *ev
	if ev.Details != nil {
		cp.Details = make(map[string]interface{}, len(ev.Details))
		for k, v := range ev.Details {
			cp.Details[k] = v
		}
	}
	m.audit = append(m.audit, cp)
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, sessionKey string, limit int) ([]models.HistoryMessage, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.HistoryMessage
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if m.messages[i].SessionKey == sessionKey {
			out = append(out, m.messages[i])
		}
	}
	reverse(out)
	return out, nil
}

func (m *MemoryStore) Audit(_ context.Context, sessionKey string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AuditEvent
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if m.audit[i].SessionKey == sessionKey {
			out = append(out, m.audit[i])
		}
	}
	reverse(out)
	return out, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (PruneStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st PruneStats
	msgs := m.messages[:0]
	for _, msg := range m.messages {
		if msg.CreatedAt.Before(cutoff) {
			st.Messages++
			continue
		}
		msgs = append(msgs, msg)
	}
	m.messages = msgs
	audit := m.audit[:0]
	for _, ev := range m.audit {
		if ev.CreatedAt.Before(cutoff) {
			st.Audit++
			continue
		}
		audit = append(audit, ev)
	}
	m.audit = audit
	return st, nil
}

func (m *MemoryStore) Close() error { return nil }

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
