// Package memory is a process-local state.Store for tests and one-shot runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AnkitD0811/cloud-security-scanner/state"
)

type Store struct {
	mu    sync.Mutex
	runs  map[string]state.RunRecord
	steps map[string][]state.StepRecord
}

func New() *Store {
	return &Store{
		runs:  map[string]state.RunRecord{},
		steps: map[string][]state.StepRecord{},
	}
}

func (m *Store) SaveRun(_ context.Context, run state.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.runs[run.RunID]; ok && existing.CreatedAt != nil {
		run.CreatedAt = existing.CreatedAt
	}
	if run.CreatedAt == nil {
		now := time.Now().UTC()
		run.CreatedAt = &now
	}
	m.runs[run.RunID] = run
	return nil
}

func (m *Store) LoadRun(_ context.Context, runID string) (state.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return state.RunRecord{}, state.ErrNotFound
	}
	return run, nil
}

func (m *Store) ListRuns(_ context.Context, query state.ListRunsQuery) ([]state.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.RunRecord, 0, len(m.runs))
	for _, run := range m.runs {
		if query.Status != "" && run.Status != query.Status {
			continue
		}
		if query.Input != "" && run.Input != query.Input {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(*out[j].CreatedAt) })
	if query.Offset > 0 {
		if query.Offset >= len(out) {
			return []state.RunRecord{}, nil
		}
		out = out[query.Offset:]
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (m *Store) SaveStep(_ context.Context, step state.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.steps[step.RunID] {
		if existing.Seq == step.Seq {
			return state.ErrConflict
		}
	}
	m.steps[step.RunID] = append(m.steps[step.RunID], step)
	return nil
}

func (m *Store) ListSteps(_ context.Context, runID string) ([]state.StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]state.StepRecord(nil), m.steps[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Store) Close() error { return nil }
