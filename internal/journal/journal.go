// Package journal persists run history and stage state transitions to
// SQLite. The scheduler tracks state in memory; the journal is the durable
// record used for end-of-run reporting and the --history view, so the
// orchestrator never has to infer past runs from the filesystem.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cwobiora/oncoflow/internal/events"
)

// Journal is a SQLite-backed run log.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at the given path, creating
// parent directories as needed. WAL mode keeps the event writer from
// blocking history reads.
func Open(ctx context.Context, dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	db.SetMaxOpenConns(2)

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

// OpenMemory opens an in-memory journal for tests.
func OpenMemory(ctx context.Context) (*Journal, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("opening memory journal: %w", err)
	}
	db.SetMaxOpenConns(2)

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun records the start of a run.
func (j *Journal) BeginRun(ctx context.Context, runID, pipeline string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, pipeline, verdict, started_at)
		VALUES (?, ?, 'running', CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO NOTHING
	`, runID, pipeline)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun records the terminal verdict of a run.
func (j *Journal) FinishRun(ctx context.Context, runID, verdict string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE runs SET verdict = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?
	`, verdict, runID)
	if err != nil {
		return fmt.Errorf("recording run verdict: %w", err)
	}
	return nil
}

// RecordEvent appends one stage state transition.
func (j *Journal) RecordEvent(ctx context.Context, ev events.StageEvent) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO stage_events (run_id, stage, from_state, to_state, error_kind, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.RunID, ev.Stage, ev.From, ev.To, ev.ErrorKind, ev.Detail, ev.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording stage event: %w", err)
	}
	return nil
}

// RunSummary is one row of run history.
type RunSummary struct {
	ID        string
	Pipeline  string
	Verdict   string
	StartedAt string
	Finished  string
}

// History returns the most recent runs, newest first.
func (j *Journal) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, pipeline, verdict, started_at, COALESCE(finished_at, '')
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run history: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Pipeline, &r.Verdict, &r.StartedAt, &r.Finished); err != nil {
			return nil, fmt.Errorf("scanning run history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StageEvents returns every recorded transition of one run in insertion order.
func (j *Journal) StageEvents(ctx context.Context, runID string) ([]events.StageEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT stage, from_state, to_state, error_kind, detail
		FROM stage_events WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying stage events: %w", err)
	}
	defer rows.Close()

	var out []events.StageEvent
	for rows.Next() {
		ev := events.StageEvent{RunID: runID}
		if err := rows.Scan(&ev.Stage, &ev.From, &ev.To, &ev.ErrorKind, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scanning stage event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
