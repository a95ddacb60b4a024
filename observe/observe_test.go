package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AnkitD0811/cloud-security-scanner/types"
)

func TestFromRuntimeEvent_ToolCall(t *testing.T) {
	e := FromRuntimeEvent(types.Event{
		Type:       types.EventAfterTool,
		RunID:      "r1",
		Iteration:  2,
		ToolName:   "checkov",
		ToolCallID: "call_1",
		Error:      "scanner crashed",
	})
	if e.Kind != KindTool || e.Name != "after_tool" {
		t.Fatalf("unexpected kind/name: %#v", e)
	}
	if e.Status != StatusDegraded {
		t.Fatalf("tool error should mark the event degraded, got %q", e.Status)
	}
	if e.SpanID != "r1:tool:2:call_1" || e.ParentSpanID != "r1:think:2" {
		t.Fatalf("unexpected span ids %q %q", e.SpanID, e.ParentSpanID)
	}
	if e.Attributes["toolCallId"] != "call_1" || e.Timestamp.IsZero() {
		t.Fatalf("event not normalized: %#v", e)
	}
}

func TestFromRuntimeEvent_Kinds(t *testing.T) {
	cases := map[types.EventType]struct {
		kind   Kind
		status Status
	}{
		types.EventRunStarted:      {KindRun, StatusStarted},
		types.EventStateEntered:    {KindState, StatusCompleted},
		types.EventBeforeDecide:    {KindOracle, StatusStarted},
		types.EventAfterWrite:      {KindOracle, StatusCompleted},
		types.EventDegraded:        {KindRun, StatusDegraded},
		types.EventReportPersisted: {KindReport, StatusCompleted},
		types.EventRunFailed:       {KindRun, StatusFailed},
	}
	for typ, want := range cases {
		e := FromRuntimeEvent(types.Event{Type: typ, RunID: "r"})
		if e.Kind != want.kind || e.Status != want.status {
			t.Fatalf("%s: got %s/%s, want %s/%s", typ, e.Kind, e.Status, want.kind, want.status)
		}
	}
}

func TestMultiSinkDeliversToAll(t *testing.T) {
	var got []string
	first := SinkFunc(func(context.Context, Event) error {
		got = append(got, "first")
		return errors.New("boom")
	})
	second := SinkFunc(func(context.Context, Event) error {
		got = append(got, "second")
		return nil
	})
	err := NewMultiSink(first, nil, second).Emit(context.Background(), Event{})
	if err == nil || len(got) != 2 {
		t.Fatalf("expected both sinks called and error returned, got %v %v", got, err)
	}
	if _, ok := NewMultiSink(nil).(NoopSink); !ok {
		t.Fatalf("empty multi sink should be a noop")
	}
}

func TestAsyncSinkDrainsOnClose(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	downstream := SinkFunc(func(context.Context, Event) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	s := NewAsyncSink(downstream, 16)
	for i := 0; i < 10; i++ {
		_ = s.Emit(context.Background(), Event{Kind: KindRun})
	}
	s.Close()
	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Fatalf("expected 10 delivered events, got %d", count)
	}
	if err := s.Emit(context.Background(), Event{}); err != nil || s.Dropped() != 1 {
		t.Fatalf("emit after close should be dropped, got err=%v dropped=%d", err, s.Dropped())
	}
	s.Close()
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	s := NewAsyncSink(SinkFunc(func(context.Context, Event) error {
		<-release
		return nil
	}), 1)
	for i := 0; i < 5; i++ {
		_ = s.Emit(context.Background(), Event{Kind: KindTool})
	}
	close(release)
	s.Close()
	if s.Dropped() < 3 {
		t.Fatalf("expected at least 3 dropped events, got %d", s.Dropped())
	}
}

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewLogSink(zap.New(core))

	_ = s.Emit(context.Background(), Event{Kind: KindState, Name: "state_entered", State: "THINK", RunID: "r"})
	_ = s.Emit(context.Background(), Event{Kind: KindRun, Name: "degraded", Status: StatusDegraded, State: "INIT", Input: "a.tf", Error: "no such file"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	fields := entries[1].ContextMap()
	if fields["input"] != "a.tf" || fields["state"] != "INIT" || fields["error"] != "no such file" {
		t.Fatalf("missing degraded fields: %v", fields)
	}
}
