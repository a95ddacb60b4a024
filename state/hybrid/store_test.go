package hybrid

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AnkitD0811/cloud-security-scanner/state"
	"github.com/AnkitD0811/cloud-security-scanner/state/memory"
)

type failingStore struct {
	*memory.Store
}

func (failingStore) SaveRun(context.Context, state.RunRecord) error {
	return errors.New("write failed")
}

func TestHybridStore_LoadRunBackfillsCache(t *testing.T) {
	ctx := context.Background()
	durable := memory.New()
	cache := memory.New()
	h, err := New(durable, cache)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := durable.SaveRun(ctx, state.RunRecord{RunID: "r1", Status: state.StatusCompleted}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := cache.LoadRun(ctx, "r1"); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("cache should start empty, got %v", err)
	}
	if _, err := h.LoadRun(ctx, "r1"); err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if _, err := cache.LoadRun(ctx, "r1"); err != nil {
		t.Fatalf("cache should be backfilled: %v", err)
	}
}

func TestHybridStore_CacheFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	h, err := New(memory.New(), failingStore{memory.New()}, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := h.SaveRun(ctx, state.RunRecord{RunID: "r2"}); err != nil {
		t.Fatalf("cache failure must not fail SaveRun: %v", err)
	}
	if logs.FilterMessage("run cache write failed").FilterField(zap.String("op", "save_run")).Len() != 1 {
		t.Fatalf("expected one warning, got %v", logs.All())
	}
}

func TestHybridStore_DurableFailurePropagates(t *testing.T) {
	h, err := New(failingStore{memory.New()}, memory.New())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := h.SaveRun(context.Background(), state.RunRecord{RunID: "r3"}); err == nil {
		t.Fatalf("expected durable failure")
	}
}

func TestHybridStore_RequiresDurable(t *testing.T) {
	if _, err := New(nil, memory.New()); err == nil {
		t.Fatalf("expected error")
	}
}
