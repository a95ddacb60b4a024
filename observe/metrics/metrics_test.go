package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AnkitD0811/cloud-security-scanner/observe"
)

func TestMetricsCountsEvents(t *testing.T) {
	m := New()
	ctx := context.Background()
	events := []observe.Event{
		{Kind: observe.KindTool, Name: "after_tool", ToolName: "checkov", DurationMs: 1200},
		{Kind: observe.KindTool, Name: "after_tool", ToolName: "checkov", Error: "exit status 2"},
		{Kind: observe.KindOracle, Name: "after_decide"},
		{Kind: observe.KindOracle, Name: "after_write", Error: "oracle call timed out"},
		{Kind: observe.KindRun, Name: "degraded", State: "WRITE"},
		{Kind: observe.KindReport, Name: "report_persisted", Attributes: map[string]any{"high": 2, "low": 1}},
		{Kind: observe.KindRun, Name: "completed", DurationMs: 3000},
	}
	for _, e := range events {
		if err := m.Emit(ctx, e); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("checkov", "ok")); got != 1 {
		t.Fatalf("expected 1 ok checkov call, got %v", got)
	}
	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("checkov", "error")); got != 1 {
		t.Fatalf("expected 1 failed checkov call, got %v", got)
	}
	if got := testutil.ToFloat64(m.OracleCalls.WithLabelValues("write", "error")); got != 1 {
		t.Fatalf("expected 1 failed write call, got %v", got)
	}
	if got := testutil.ToFloat64(m.Degraded.WithLabelValues("WRITE")); got != 1 {
		t.Fatalf("expected 1 degraded WRITE, got %v", got)
	}
	if got := testutil.ToFloat64(m.Findings.WithLabelValues("high")); got != 2 {
		t.Fatalf("expected 2 high findings, got %v", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected 1 completed run, got %v", got)
	}
}

func TestStateEventsAreNotRuns(t *testing.T) {
	m := New()
	_ = m.Emit(context.Background(), observe.Event{Kind: observe.KindTool, Name: "completed"})
	if got := testutil.CollectAndCount(m.Runs); got != 0 {
		t.Fatalf("expected no run series, got %d", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	_ = m.Emit(context.Background(), observe.Event{Kind: observe.KindRun, Name: "failed"})
	path := filepath.Join(t.TempDir(), "iacscan.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(raw), `iacscan_runs_total{status="failed"} 1`) {
		t.Fatalf("unexpected textfile:\n%s", raw)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	if err := m.Emit(context.Background(), observe.Event{Name: "completed"}); err != nil {
		t.Fatalf("nil metrics should ignore events: %v", err)
	}
	if err := m.WriteTextfile("x"); err != nil {
		t.Fatalf("nil metrics should not write: %v", err)
	}
}
