// Package journal keeps a local record of every sync run and every calendar
// operation applied, for auditing and export.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	scraped     INTEGER NOT NULL,
	created     INTEGER NOT NULL,
	updated     INTEGER NOT NULL,
	deleted     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	outcome     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS operations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL REFERENCES runs(id),
	op             TEXT NOT NULL,
	appointment_id TEXT NOT NULL,
	event_id       TEXT NOT NULL,
	summary        TEXT NOT NULL,
	start_time     TIMESTAMP NOT NULL,
	detail         TEXT NOT NULL DEFAULT '',
	applied_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operations_run ON operations(run_id);
`

// Run is one journal entry per sync run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Scraped    int
	Created    int
	Updated    int
	Deleted    int
	Failed     int
	Skipped    int
	Outcome    string
}

// Operation is one applied (or failed) calendar operation.
type Operation struct {
	RunID         string
	Op            string
	AppointmentID string
	EventID       string
	Summary       string
	StartTime     time.Time
	Detail        string
	AppliedAt     time.Time
}

// Journal is the sqlite-backed store.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database and applies the schema.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// The tool is single-threaded; one connection also keeps :memory:
	// databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) PingContext(ctx context.Context) error { return j.db.PingContext(ctx) }

// RecordRun inserts the summary row for a finished run.
func (j *Journal) RecordRun(ctx context.Context, r Run) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, scraped, created, updated, deleted, failed, skipped, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt, r.FinishedAt, r.Scraped, r.Created, r.Updated, r.Deleted, r.Failed, r.Skipped, r.Outcome)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordOperation appends one operation row.
func (j *Journal) RecordOperation(ctx context.Context, op Operation) error {
	if op.AppliedAt.IsZero() {
		op.AppliedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO operations (run_id, op, appointment_id, event_id, summary, start_time, detail, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.RunID, op.Op, op.AppointmentID, op.EventID, op.Summary, op.StartTime, op.Detail, op.AppliedAt)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, scraped, created, updated, deleted, failed, skipped, outcome
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Scraped, &r.Created,
			&r.Updated, &r.Deleted, &r.Failed, &r.Skipped, &r.Outcome); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Operations returns all operations of a run in applied order.
func (j *Journal) Operations(ctx context.Context, runID string) ([]Operation, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, op, appointment_id, event_id, summary, start_time, detail, applied_at
		FROM operations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.RunID, &op.Op, &op.AppointmentID, &op.EventID,
			&op.Summary, &op.StartTime, &op.Detail, &op.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
