// Package state indexes scan runs so they can be listed and inspected after
// the process exits.
package state

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("state: not found")
	ErrConflict = errors.New("state: conflict")
)

type ListRunsQuery struct {
	Status string
	Input  string
	Limit  int
	Offset int
}

type Store interface {
	SaveRun(ctx context.Context, run RunRecord) error
	LoadRun(ctx context.Context, runID string) (RunRecord, error)
	ListRuns(ctx context.Context, query ListRunsQuery) ([]RunRecord, error)

	// SaveStep records one loop state transition. Seq is unique per run.
	SaveStep(ctx context.Context, step StepRecord) error
	// ListSteps returns a run's steps in Seq order.
	ListSteps(ctx context.Context, runID string) ([]StepRecord, error)

	Close() error
}
