package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/askdesk/askdesk/pkg/models"
)

// Tracker records resolved questions and reports on them.
type Tracker interface {
	// Record stores a query record.
	Record(ctx context.Context, rec models.QueryRecord) error
	// QueryByClient returns records for a client since a given time, newest first.
	QueryByClient(ctx context.Context, clientID string, since time.Time) ([]models.QueryRecord, error)
	// Summary aggregates records since a given time by source and model.
	Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS query_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_client_time ON query_records(client_id, created_at);
CREATE INDEX IF NOT EXISTS idx_query_time ON query_records(created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a query record.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.QueryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO query_records (client_id, model, source, attempts, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ClientID, rec.Model, rec.Source, rec.Attempts,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.LatencyMs, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// QueryByClient returns records for a client since a given time.
func (t *SQLiteTracker) QueryByClient(ctx context.Context, clientID string, since time.Time) ([]models.QueryRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, client_id, model, source, attempts, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at
		 FROM query_records WHERE client_id = ? AND created_at >= ? ORDER BY created_at DESC`,
		clientID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		if err := rows.Scan(&r.ID, &r.ClientID, &r.Model, &r.Source, &r.Attempts,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns aggregated records grouped by source and model.
func (t *SQLiteTracker) Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT source, model, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(AVG(latency_ms), 0), COALESCE(SUM(attempts), 0)
		 FROM query_records WHERE created_at >= ?
		 GROUP BY source, model ORDER BY source, model`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Source, &s.Model, &s.RequestCount, &s.TotalTokens, &s.AvgLatencyMs, &s.TotalAttempts); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
