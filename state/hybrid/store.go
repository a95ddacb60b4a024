// Package hybrid writes through to a durable store and keeps a best-effort
// cache in front of it for reads.
package hybrid

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/AnkitD0811/cloud-security-scanner/state"
)

type Store struct {
	durable state.Store
	cache   state.Store
	logger  *zap.Logger
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(durable state.Store, cache state.Store, opts ...Option) (*Store, error) {
	if durable == nil {
		return nil, errors.New("hybrid: durable store is required")
	}
	s := &Store{durable: durable, cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// mirror applies op to the cache and only logs failures.
func (h *Store) mirror(op, runID string, fn func(cache state.Store) error) {
	if h.cache == nil {
		return
	}
	if err := fn(h.cache); err != nil && !errors.Is(err, state.ErrConflict) {
		h.logger.Warn("run cache write failed", zap.String("op", op), zap.String("run_id", runID), zap.Error(err))
	}
}

func (h *Store) SaveRun(ctx context.Context, run state.RunRecord) error {
	if err := h.durable.SaveRun(ctx, run); err != nil {
		return err
	}
	h.mirror("save_run", run.RunID, func(c state.Store) error { return c.SaveRun(ctx, run) })
	return nil
}

// LoadRun reads through the cache and backfills it on a miss.
func (h *Store) LoadRun(ctx context.Context, runID string) (state.RunRecord, error) {
	if h.cache != nil {
		run, err := h.cache.LoadRun(ctx, runID)
		switch {
		case err == nil:
			return run, nil
		case !errors.Is(err, state.ErrNotFound):
			h.logger.Debug("run cache read failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	run, err := h.durable.LoadRun(ctx, runID)
	if err != nil {
		return state.RunRecord{}, err
	}
	h.mirror("backfill", runID, func(c state.Store) error { return c.SaveRun(ctx, run) })
	return run, nil
}

// ListRuns and ListSteps always answer from the durable store; the cache
// only holds what this process or its peers wrote within the TTL.
func (h *Store) ListRuns(ctx context.Context, query state.ListRunsQuery) ([]state.RunRecord, error) {
	return h.durable.ListRuns(ctx, query)
}

func (h *Store) SaveStep(ctx context.Context, step state.StepRecord) error {
	if err := h.durable.SaveStep(ctx, step); err != nil {
		return err
	}
	h.mirror("save_step", step.RunID, func(c state.Store) error { return c.SaveStep(ctx, step) })
	return nil
}

func (h *Store) ListSteps(ctx context.Context, runID string) ([]state.StepRecord, error) {
	return h.durable.ListSteps(ctx, runID)
}

func (h *Store) Close() error {
	var cacheErr error
	if h.cache != nil {
		cacheErr = h.cache.Close()
	}
	return errors.Join(h.durable.Close(), cacheErr)
}
