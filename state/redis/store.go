// Package redis keeps run records in Redis with a TTL, for teams that share
// one run index across machines.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/AnkitD0811/cloud-security-scanner/state"
)

const (
	DefaultTTL    = 72 * time.Hour
	DefaultPrefix = "iacscan"

	defaultListLimit = 50
)

// keyspace names every key the store touches.
type keyspace string

func (k keyspace) run(id string) string        { return string(k) + ":run:" + id }
func (k keyspace) steps(id string) string      { return string(k) + ":steps:" + id }
func (k keyspace) byTime() string              { return string(k) + ":runs" }
func (k keyspace) byStatus(s string) string    { return string(k) + ":runs:status:" + s }
func (k keyspace) byInput(input string) string { return string(k) + ":runs:input:" + input }

type Store struct {
	client *goredis.Client
	keys   keyspace
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets how long runs and steps survive their last write.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.keys = keyspace(p)
		}
	}
}

// New connects with the given client options and pings the server.
func New(ctx context.Context, conn *goredis.Options, opts ...Option) (*Store, error) {
	if conn == nil || strings.TrimSpace(conn.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	s := &Store{keys: DefaultPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	s.client = goredis.NewClient(conn)
	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", conn.Addr, err)
	}
	return s, nil
}

// SaveRun stores the record as JSON and indexes it by creation time, status
// and input. created_at never changes once written.
func (s *Store) SaveRun(ctx context.Context, run state.RunRecord) error {
	if run.RunID == "" {
		return errors.New("run_id is required")
	}
	now := time.Now().UTC()
	if run.UpdatedAt == nil {
		run.UpdatedAt = &now
	}

	previous, err := s.LoadRun(ctx, run.RunID)
	switch {
	case err == nil:
		if previous.CreatedAt != nil {
			run.CreatedAt = previous.CreatedAt
		}
	case !errors.Is(err, state.ErrNotFound):
		return err
	}
	if run.CreatedAt == nil {
		run.CreatedAt = &now
	}

	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.RunID, err)
	}
	member := goredis.Z{Score: float64(run.CreatedAt.UnixNano()), Member: run.RunID}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.keys.run(run.RunID), raw, s.ttl)
		if previous.Status != "" && previous.Status != run.Status {
			pipe.ZRem(ctx, s.keys.byStatus(previous.Status), run.RunID)
		}
		if previous.Input != "" && previous.Input != run.Input {
			pipe.ZRem(ctx, s.keys.byInput(previous.Input), run.RunID)
		}
		for _, index := range []string{s.keys.byTime(), s.keys.byStatus(run.Status), s.keys.byInput(run.Input)} {
			pipe.ZAdd(ctx, index, member)
			pipe.Expire(ctx, index, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, runID string) (state.RunRecord, error) {
	if runID == "" {
		return state.RunRecord{}, errors.New("run_id is required")
	}
	raw, err := s.client.Get(ctx, s.keys.run(runID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return state.RunRecord{}, state.ErrNotFound
	}
	if err != nil {
		return state.RunRecord{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	var run state.RunRecord
	if err := json.Unmarshal(raw, &run); err != nil {
		return state.RunRecord{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns pages through the narrowest index for the query, newest first.
// With both filters set the input filter is applied after loading, so such a
// page can be shorter than Limit.
func (s *Store) ListRuns(ctx context.Context, query state.ListRunsQuery) ([]state.RunRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := int64(max(query.Offset, 0))

	index := s.keys.byTime()
	switch {
	case query.Status != "":
		index = s.keys.byStatus(query.Status)
	case query.Input != "":
		index = s.keys.byInput(query.Input)
	}
	ids, err := s.client.ZRevRange(ctx, index, offset, offset+int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(ids) == 0 {
		return []state.RunRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.keys.run(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]state.RunRecord, 0, len(values))
	var expired []any
	for i, v := range values {
		text, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var run state.RunRecord
		if json.Unmarshal([]byte(text), &run) != nil {
			continue
		}
		if query.Input != "" && run.Input != query.Input {
			continue
		}
		runs = append(runs, run)
	}
	// Index entries outlive their run keys when only the index was refreshed.
	if len(expired) > 0 {
		s.client.ZRem(ctx, index, expired...)
	}
	return runs, nil
}

func (s *Store) SaveStep(ctx context.Context, step state.StepRecord) error {
	if step.RunID == "" {
		return errors.New("run_id is required")
	}
	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("encode step: %w", err)
	}
	key := s.keys.steps(step.RunID)
	added, err := s.client.HSetNX(ctx, key, strconv.Itoa(step.Seq), raw).Result()
	if err != nil {
		return fmt.Errorf("save step %s/%d: %w", step.RunID, step.Seq, err)
	}
	if !added {
		return state.ErrConflict
	}
	s.client.Expire(ctx, key, s.ttl)
	return nil
}

func (s *Store) ListSteps(ctx context.Context, runID string) ([]state.StepRecord, error) {
	if runID == "" {
		return nil, errors.New("run_id is required")
	}
	values, err := s.client.HVals(ctx, s.keys.steps(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	steps := make([]state.StepRecord, 0, len(values))
	for _, raw := range values {
		var step state.StepRecord
		if json.Unmarshal([]byte(raw), &step) == nil {
			steps = append(steps, step)
		}
	}
	slices.SortFunc(steps, func(a, b state.StepRecord) int { return a.Seq - b.Seq })
	return steps, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
