package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// AuditEntry is one row of the relational mission log.
type AuditEntry struct {
	ID             int64
	ConversationID *int64
	MissionID      int64
	Query          string
	Response       string
	Status         string
	CreatedAt      time.Time
}

// AuditStore keeps the mission log in SQLite. Writes are serialized.
type AuditStore struct {
	DB *sql.DB
	mu sync.Mutex
}

func NewAuditStore(dbPath string) (*AuditStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mission_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER,
			mission_id INTEGER NOT NULL,
			query TEXT,
			response TEXT,
			status TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mission_logs_conversation ON mission_logs (conversation_id);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &AuditStore{DB: db}, nil
}

func (a *AuditStore) Record(ctx context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var conv sql.NullInt64
	if e.ConversationID != nil {
		conv = sql.NullInt64{Int64: *e.ConversationID, Valid: true}
	}
	query := `INSERT INTO mission_logs (conversation_id, mission_id, query, response, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := a.DB.ExecContext(ctx, query, conv, e.MissionID, e.Query, e.Response, e.Status, created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record mission %d: %w", e.MissionID, err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (a *AuditStore) List(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, conversation_id, mission_id, query, response, status, created_at FROM mission_logs ORDER BY id DESC LIMIT ?`
	rows, err := a.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			conv    sql.NullInt64
			created string
		)
		if err := rows.Scan(&e.ID, &conv, &e.MissionID, &e.Query, &e.Response, &e.Status, &created); err != nil {
			return nil, err
		}
		if conv.Valid {
			id := conv.Int64
			e.ConversationID = &id
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastMissionID returns the highest mission id recorded, or 0 for an empty log.
func (a *AuditStore) LastMissionID(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	if err := a.DB.QueryRowContext(ctx, `SELECT MAX(mission_id) FROM mission_logs`).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read last mission id: %w", err)
	}
	return last.Int64, nil
}

func (a *AuditStore) Close() error {
	return a.DB.Close()
}
