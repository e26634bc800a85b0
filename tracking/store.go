// Package tracking records pipeline runs, with their parameters and metrics,
// in a SQLite database.
package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one execution of the pipeline (or of a single stage).
type Run struct {
	ID          string             `json:"id"`
	Trigger     string             `json:"trigger"` // "cli", "schedule", "http"
	Status      string             `json:"status"`
	FailedStage string             `json:"failed_stage,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Params      map[string]float64 `json:"params,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Duration is FinishedAt - StartedAt, or zero while the run is in progress.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Store persists runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// single writer
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		trigger TEXT NOT NULL,
		status TEXT NOT NULL,
		failed_stage TEXT,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		params TEXT,
		metrics TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordRun inserts or replaces run.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.NewValueError("RecordRun", "run id is required")
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return errors.Wrap(err, "failed to encode params")
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return errors.Wrap(err, "failed to encode metrics")
	}

	var finished interface{}
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, trigger, status, failed_stage, error, started_at, finished_at, params, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			failed_stage = excluded.failed_stage,
			error = excluded.error,
			finished_at = excluded.finished_at,
			params = excluded.params,
			metrics = excluded.metrics
	`, run.ID, run.Trigger, run.Status, run.FailedStage, run.Error, run.StartedAt.UTC(), finished,
		string(params), string(metrics))
	if err != nil {
		return errors.Wrapf(err, "failed to record run %s", run.ID)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger, status, failed_stage, error, started_at, finished_at, params, metrics
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                     Run
			failedStage, errText    sql.NullString
			finished                sql.NullTime
			paramsJSON, metricsJSON sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Trigger, &run.Status, &failedStage, &errText,
			&run.StartedAt, &finished, &paramsJSON, &metricsJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		run.FailedStage = failedStage.String
		run.Error = errText.String
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		if paramsJSON.Valid && paramsJSON.String != "" {
			if err := json.Unmarshal([]byte(paramsJSON.String), &run.Params); err != nil {
				return nil, errors.Wrapf(err, "run %s: bad params", run.ID)
			}
		}
		if metricsJSON.Valid && metricsJSON.String != "" {
			if err := json.Unmarshal([]byte(metricsJSON.String), &run.Metrics); err != nil {
				return nil, errors.Wrapf(err, "run %s: bad metrics", run.ID)
			}
		}
		runs = append(runs, run)
	}
	return runs, errors.WithStack(rows.Err())
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
