// Package audit persists prompts, outputs, and alerts to a local
// SQLite database so a user can review exactly what the gateway saw
// and redacted, without any of it leaving the machine.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stacklok/codegate/internal/pipeline"
	"github.com/stacklok/codegate/pkg/models"
)

// Store is a SQLite-backed implementation of pipeline.AuditSink, plus
// the read-side queries the management API needs to list history.
type Store struct {
	db *sql.DB
}

var _ pipeline.AuditSink = (*Store)(nil)

// Open creates (if necessary) and migrates the SQLite database at
// path, returning a ready-to-use Store.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one file handle
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prompts (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			provider TEXT NOT NULL,
			type TEXT NOT NULL,
			request TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outputs (
			id TEXT PRIMARY KEY,
			prompt_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			output TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			prompt_id TEXT NOT NULL,
			code_snippet TEXT,
			trigger_string TEXT,
			trigger_type TEXT NOT NULL,
			trigger_category TEXT,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outputs_prompt_id ON outputs(prompt_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_prompt_id ON alerts(prompt_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit: migrate: %w", err)
		}
	}
	return nil
}

// RecordPrompt implements pipeline.AuditSink.
func (s *Store) RecordPrompt(rec models.PromptRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO prompts (id, workspace_id, timestamp, provider, type, request) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkspaceID, rec.Timestamp.UnixNano(), rec.Provider, rec.Type, rec.Request,
	)
	if err != nil {
		return fmt.Errorf("audit: record prompt: %w", err)
	}
	return nil
}

// RecordOutput implements pipeline.AuditSink.
func (s *Store) RecordOutput(rec models.OutputRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO outputs (id, prompt_id, timestamp, output) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.PromptID, rec.Timestamp.UnixNano(), rec.Output,
	)
	if err != nil {
		return fmt.Errorf("audit: record output: %w", err)
	}
	return nil
}

// RecordAlert implements pipeline.AuditSink.
func (s *Store) RecordAlert(rec models.AlertRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO alerts (id, prompt_id, code_snippet, trigger_string, trigger_type, trigger_category, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PromptID, rec.CodeSnippet, rec.TriggerString, string(rec.TriggerType), rec.TriggerCategory, rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("audit: record alert: %w", err)
	}
	return nil
}

// ListPromptsFilter narrows a prompt history query for the management API.
type ListPromptsFilter struct {
	WorkspaceID string
	Limit       int
}

// ListPrompts returns the most recent prompts matching filter, newest first.
func (s *Store) ListPrompts(ctx context.Context, filter ListPromptsFilter) ([]models.PromptRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, workspace_id, timestamp, provider, type, request FROM prompts`
	args := []any{}
	if filter.WorkspaceID != "" {
		query += ` WHERE workspace_id = ?`
		args = append(args, filter.WorkspaceID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list prompts: %w", err)
	}
	defer rows.Close()

	var out []models.PromptRecord
	for rows.Next() {
		var rec models.PromptRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.WorkspaceID, &ts, &rec.Provider, &rec.Type, &rec.Request); err != nil {
			return nil, fmt.Errorf("audit: scan prompt: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListOutputs returns every output recorded for promptID, oldest first.
func (s *Store) ListOutputs(ctx context.Context, promptID string) ([]models.OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt_id, timestamp, output FROM outputs WHERE prompt_id = ? ORDER BY timestamp ASC`, promptID)
	if err != nil {
		return nil, fmt.Errorf("audit: list outputs: %w", err)
	}
	defer rows.Close()

	var out []models.OutputRecord
	for rows.Next() {
		var rec models.OutputRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.PromptID, &ts, &rec.Output); err != nil {
			return nil, fmt.Errorf("audit: scan output: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListAlerts returns the most recent alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt_id, code_snippet, trigger_string, trigger_type, trigger_category, timestamp
		 FROM alerts ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.AlertRecord
	for rows.Next() {
		var rec models.AlertRecord
		var ts int64
		var triggerType string
		if err := rows.Scan(&rec.ID, &rec.PromptID, &rec.CodeSnippet, &rec.TriggerString, &triggerType, &rec.TriggerCategory, &ts); err != nil {
			return nil, fmt.Errorf("audit: scan alert: %w", err)
		}
		rec.TriggerType = models.TriggerType(triggerType)
		rec.Timestamp = time.Unix(0, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
