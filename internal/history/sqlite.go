package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore persists history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Str("path", path).Msg("🗂️  History store opened")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *models.HistoryMessage) error {
	if msg.SessionKey == "" {
		return fmt.Errorf("session key is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO chat_messages (session_key, user_id, role, text, intent, correlation_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionKey, msg.UserID, msg.Role, msg.Text, msg.Intent, msg.CorrelationID,
		msg.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		msg.ID = id
	}
	return nil
}

func (s *SQLiteStore) SaveAudit(ctx context.Context, ev *models.AuditEvent) error {
	if ev.SessionKey == "" {
		return fmt.Errorf("session key is required")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	details := []byte("{}")
	if ev.Details != nil {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = b
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO audit_events (session_key, correlation_id, action, role, details, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SessionKey, ev.CorrelationID, ev.Action, ev.Role, string(details),
		ev.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, sessionKey string, limit int) ([]models.HistoryMessage, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_key, user_id, role, text, intent, correlation_id, created_at
FROM chat_messages
WHERE session_key = ?
ORDER BY id DESC
LIMIT ?`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryMessage
	for rows.Next() {
		var m models.HistoryMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionKey, &m.UserID, &m.Role, &m.Text, &m.Intent, &m.CorrelationID, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	reverse(out)
	return out, nil
}

func (s *SQLiteStore) Audit(ctx context.Context, sessionKey string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_key, correlation_id, action, role, details, created_at
FROM audit_events
WHERE session_key = ?
ORDER BY id DESC
LIMIT ?`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		var details string
		var created int64
		if err := rows.Scan(&ev.ID, &ev.SessionKey, &ev.CorrelationID, &ev.Action, &ev.Role, &details, &created); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &ev.Details); err != nil {
			log.Warn().Err(err).Int64("id", ev.ID).Msg("Unreadable audit details")
		}
		ev.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	reverse(out)
	return out, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (PruneStats, error) {
	var st PruneStats
	ms := cutoff.UTC().UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE created_at < ?`, ms)
	if err != nil {
		return st, fmt.Errorf("prune messages: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		st.Messages = int(n)
	}
	res, err = s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < ?`, ms)
	if err != nil {
		return st, fmt.Errorf("prune audit events: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		st.Audit = int(n)
	}
	return st, nil
}

// ── Migrations ──────────────────────────────────────────────

// applyMigrations runs each embedded file at most once, recording it in
// schema_migrations.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		var found int
		err := db.QueryRow(`SELECT 1 FROM schema_migrations WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	body := content[start+len(up):]
	if end := strings.Index(body, down); end != -1 {
		body = body[:end]
	}
	return body
}
