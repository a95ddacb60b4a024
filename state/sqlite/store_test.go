package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AnkitD0811/cloud-security-scanner/report"
	"github.com/AnkitD0811/cloud-security-scanner/state"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveLoadRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	record := state.RunRecord{
		RunID:       "run-1",
		Provider:    "gemini",
		Status:      state.StatusCompleted,
		Input:       "/tmp/main.tf",
		InputDigest: "abc123",
		ReportName:  "main_tf_2025-01-01_00-00-00_000",
		ReportPath:  "/out/main_tf/main_tf.json",
		Iterations:  2,
		Summary:     &report.Summary{Count: 1, High: 1},
		Degraded:    []string{"redacted 1 secret"},
		Usage:       &types.Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3},
		CreatedAt:   &now,
		UpdatedAt:   &now,
		CompletedAt: &now,
	}
	if err := s.SaveRun(ctx, record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := s.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if got.Summary == nil || *got.Summary != (report.Summary{Count: 1, High: 1}) {
		t.Fatalf("unexpected summary: %#v", got.Summary)
	}
	if got.Usage == nil || got.Usage.TotalTokens != 3 {
		t.Fatalf("unexpected usage: %#v", got.Usage)
	}
	if len(got.Degraded) != 1 || got.Iterations != 2 || got.CompletedAt == nil {
		t.Fatalf("unexpected record: %#v", got)
	}

	if _, err := s.LoadRun(ctx, "missing"); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_SaveRunUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	record := state.RunRecord{
		RunID:     "run-upsert",
		Provider:  "p1",
		Status:    state.StatusRunning,
		Input:     "a.tf",
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	if err := s.SaveRun(ctx, record); err != nil {
		t.Fatalf("SaveRun initial failed: %v", err)
	}

	updated := record
	updated.Status = state.StatusFailed
	updated.Error = "run timed out"
	later := now.Add(time.Second)
	updated.CreatedAt = &later
	updated.UpdatedAt = &later
	updated.CompletedAt = &later
	if err := s.SaveRun(ctx, updated); err != nil {
		t.Fatalf("SaveRun upsert failed: %v", err)
	}

	got, err := s.LoadRun(ctx, "run-upsert")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if got.Status != state.StatusFailed || got.Error != "run timed out" {
		t.Fatalf("upsert not applied: %#v", got)
	}
	if got.CreatedAt == nil || !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at should remain unchanged: %v", got.CreatedAt)
	}
	if got.Summary != nil {
		t.Fatalf("summary should stay empty: %#v", got.Summary)
	}
}

func TestSQLiteStore_ListRunsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, status := range []string{state.StatusCompleted, state.StatusFailed, state.StatusCompleted} {
		created := base.Add(time.Duration(i) * time.Second)
		if err := s.SaveRun(ctx, state.RunRecord{
			RunID:     "run-" + string(rune('a'+i)),
			Status:    status,
			Input:     "main.tf",
			CreatedAt: &created,
		}); err != nil {
			t.Fatalf("SaveRun %d failed: %v", i, err)
		}
	}

	all, err := s.ListRuns(ctx, state.ListRunsQuery{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "run-c" {
		t.Fatalf("expected newest first, got %#v", all)
	}

	completed, err := s.ListRuns(ctx, state.ListRunsQuery{Status: state.StatusCompleted, Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns filtered failed: %v", err)
	}
	if len(completed) != 1 || completed[0].RunID != "run-c" {
		t.Fatalf("unexpected filtered runs: %#v", completed)
	}
}

func TestSQLiteStore_Steps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for seq, name := range []string{"INIT", "THINK", "WRITE", "DONE"} {
		if err := s.SaveStep(ctx, state.StepRecord{RunID: "run-steps", Seq: seq, State: name, Iteration: seq}); err != nil {
			t.Fatalf("SaveStep %s failed: %v", name, err)
		}
	}
	if err := s.SaveStep(ctx, state.StepRecord{RunID: "run-steps", Seq: 1, State: "ACT"}); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate seq, got %v", err)
	}

	steps, err := s.ListSteps(ctx, "run-steps")
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(steps) != 4 || steps[0].State != "INIT" || steps[3].State != "DONE" {
		t.Fatalf("unexpected steps: %#v", steps)
	}
}

func TestDSN_CarriesPragmas(t *testing.T) {
	withWAL := dsn("/tmp/runs.db", Config{BusyTimeout: 2 * time.Second})
	if !strings.Contains(withWAL, "busy_timeout%282000%29") || !strings.Contains(withWAL, "journal_mode%28WAL%29") {
		t.Fatalf("unexpected dsn %q", withWAL)
	}
	if noWAL := dsn("/tmp/runs.db", Config{DisableWAL: true}); strings.Contains(noWAL, "journal_mode") {
		t.Fatalf("WAL should be off: %q", noWAL)
	}
}

func TestNew_RollbackJournal(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "plain.db"), Config{DisableWAL: true})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()
	if err := s.SaveRun(context.Background(), state.RunRecord{RunID: "r", Input: "main.tf"}); err != nil {
		t.Fatalf("save run: %v", err)
	}
	got, err := s.LoadRun(context.Background(), "r")
	if err != nil || got.Provider != "unknown" || got.Status != state.StatusRunning || got.Degraded != nil {
		t.Fatalf("unexpected defaults %#v (%v)", got, err)
	}
}
