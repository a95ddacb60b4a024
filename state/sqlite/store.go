// Package sqlite is the durable run index: one row per run, one row per
// loop state transition.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AnkitD0811/cloud-security-scanner/report"
	"github.com/AnkitD0811/cloud-security-scanner/state"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

//go:embed schema.sql
var schemaSQL string

const defaultListLimit = 50

const (
	selectRun = `SELECT run_id, provider, status, input, input_digest, report_name, report_path,
  iterations, bound_exceeded, summary, degraded, usage, error, created_at, updated_at, completed_at
FROM runs`

	upsertRun = `INSERT INTO runs (run_id, provider, status, input, input_digest, report_name, report_path,
  iterations, bound_exceeded, summary, degraded, usage, error, created_at, updated_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  provider = excluded.provider, status = excluded.status, input = excluded.input,
  input_digest = excluded.input_digest, report_name = excluded.report_name,
  report_path = excluded.report_path, iterations = excluded.iterations,
  bound_exceeded = excluded.bound_exceeded, summary = excluded.summary,
  degraded = excluded.degraded, usage = excluded.usage, error = excluded.error,
  updated_at = excluded.updated_at, completed_at = excluded.completed_at`

	insertStep = `INSERT INTO steps (run_id, seq, state, iteration, messages, observations, note, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectSteps = `SELECT run_id, seq, state, iteration, messages, observations, note, created_at
FROM steps WHERE run_id = ? ORDER BY seq`
)

// Config tunes the connection. The zero value is usable.
type Config struct {
	BusyTimeout time.Duration
	// DisableWAL keeps the default rollback journal.
	DisableWAL bool
}

type Store struct {
	db *sql.DB
}

func New(path string, configs ...Config) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	var cfg Config
	if len(configs) > 0 {
		cfg = configs[0]
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path, cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of concurrent step saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// dsn carries the pragmas so every pooled connection gets them.
func dsn(path string, cfg Config) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	if !cfg.DisableWAL {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + q.Encode()
}

// SaveRun inserts the run or replaces every column except created_at.
func (s *Store) SaveRun(ctx context.Context, run state.RunRecord) error {
	if run.RunID == "" {
		return errors.New("run_id is required")
	}
	now := time.Now().UTC()
	if run.CreatedAt == nil {
		run.CreatedAt = &now
	}
	if run.UpdatedAt == nil {
		run.UpdatedAt = &now
	}
	if run.Provider == "" {
		run.Provider = "unknown"
	}
	if run.Status == "" {
		run.Status = state.StatusRunning
	}

	summary, err := jsonColumn(run.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	usage, err := jsonColumn(run.Usage)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	degraded := "[]"
	if len(run.Degraded) > 0 {
		raw, err := json.Marshal(run.Degraded)
		if err != nil {
			return fmt.Errorf("encode degraded reasons: %w", err)
		}
		degraded = string(raw)
	}

	_, err = s.db.ExecContext(ctx, upsertRun,
		run.RunID, run.Provider, run.Status, run.Input, run.InputDigest,
		run.ReportName, run.ReportPath, run.Iterations, run.BoundExceeded,
		summary, degraded, usage, run.Error,
		timestamp(run.CreatedAt), timestamp(run.UpdatedAt), timestamp(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, runID string) (state.RunRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return state.RunRecord{}, errors.New("run_id is required")
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+" WHERE run_id = ?", runID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return state.RunRecord{}, state.ErrNotFound
	case err != nil:
		return state.RunRecord{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, query state.ListRunsQuery) ([]state.RunRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	stmt := selectRun + " WHERE (? = '' OR status = ?) AND (? = '' OR input = ?) ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, stmt,
		query.Status, query.Status, query.Input, query.Input, limit, max(query.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []state.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) SaveStep(ctx context.Context, step state.StepRecord) error {
	if step.RunID == "" {
		return errors.New("run_id is required")
	}
	if step.Seq < 0 {
		return fmt.Errorf("seq must be >= 0, got %d", step.Seq)
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, insertStep,
		step.RunID, step.Seq, step.State, step.Iteration,
		step.Messages, step.Observations, step.Note, timestamp(&step.CreatedAt))
	if err != nil {
		// modernc reports constraint failures only through the message text.
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
			return state.ErrConflict
		}
		return fmt.Errorf("save step %s/%d: %w", step.RunID, step.Seq, err)
	}
	return nil
}

func (s *Store) ListSteps(ctx context.Context, runID string) ([]state.StepRecord, error) {
	if runID == "" {
		return nil, errors.New("run_id is required")
	}
	rows, err := s.db.QueryContext(ctx, selectSteps, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	steps := []state.StepRecord{}
	for rows.Next() {
		var (
			step    state.StepRecord
			created string
		)
		if err := rows.Scan(&step.RunID, &step.Seq, &step.State, &step.Iteration,
			&step.Messages, &step.Observations, &step.Note, &created); err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		if step.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("step %d created_at: %w", step.Seq, err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (state.RunRecord, error) {
	var (
		run                     state.RunRecord
		summary, usage, done    sql.NullString
		degraded                string
		createdText, updateText string
	)
	err := row.Scan(&run.RunID, &run.Provider, &run.Status, &run.Input, &run.InputDigest,
		&run.ReportName, &run.ReportPath, &run.Iterations, &run.BoundExceeded,
		&summary, &degraded, &usage, &run.Error, &createdText, &updateText, &done)
	if err != nil {
		return state.RunRecord{}, err
	}

	if run.Summary, err = fromJSONColumn[report.Summary](summary); err != nil {
		return state.RunRecord{}, fmt.Errorf("decode summary: %w", err)
	}
	if run.Usage, err = fromJSONColumn[types.Usage](usage); err != nil {
		return state.RunRecord{}, fmt.Errorf("decode usage: %w", err)
	}
	if degraded != "" && degraded != "[]" {
		if err := json.Unmarshal([]byte(degraded), &run.Degraded); err != nil {
			return state.RunRecord{}, fmt.Errorf("decode degraded reasons: %w", err)
		}
	}

	for _, ts := range []struct {
		raw sql.NullString
		dst **time.Time
	}{
		{sql.NullString{String: createdText, Valid: true}, &run.CreatedAt},
		{sql.NullString{String: updateText, Valid: true}, &run.UpdatedAt},
		{done, &run.CompletedAt},
	} {
		if !ts.raw.Valid || ts.raw.String == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, ts.raw.String)
		if err != nil {
			return state.RunRecord{}, fmt.Errorf("parse timestamp %q: %w", ts.raw.String, err)
		}
		*ts.dst = &t
	}
	return run, nil
}

// jsonColumn stores nil pointers as SQL NULL.
func jsonColumn[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func fromJSONColumn[T any](col sql.NullString) (*T, error) {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(col.String), v); err != nil {
		return nil, err
	}
	return v, nil
}

func timestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
