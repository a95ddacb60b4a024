// Package metrics counts loop events with Prometheus collectors.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AnkitD0811/cloud-security-scanner/observe"
)

// Metrics bundles the scanner's collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	Runs         *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	OracleCalls  *prometheus.CounterVec
	Degraded     *prometheus.CounterVec
	Findings     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iacscan_runs_total",
		Help: "Scan runs by final status",
	}, []string{"status"})

	runDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iacscan_run_duration_seconds",
		Help:    "Scan run wall time",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"status"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iacscan_tool_calls_total",
		Help: "Tool invocations by tool and outcome",
	}, []string{"tool", "outcome"})

	toolDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iacscan_tool_duration_seconds",
		Help:    "Tool invocation wall time",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	oracleCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iacscan_oracle_calls_total",
		Help: "Oracle calls by phase and outcome",
	}, []string{"phase", "outcome"})

	degraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iacscan_degraded_total",
		Help: "Degraded paths taken, by loop state",
	}, []string{"state"})

	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iacscan_findings_total",
		Help: "Findings written to reports, by severity",
	}, []string{"severity"})

	reg.MustRegister(runs, runDur, toolCalls, toolDur, oracleCalls, degraded, findings)

	return &Metrics{
		registry:     reg,
		Runs:         runs,
		RunDuration:  runDur,
		ToolCalls:    toolCalls,
		ToolDuration: toolDur,
		OracleCalls:  oracleCalls,
		Degraded:     degraded,
		Findings:     findings,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Emit implements observe.Sink.
func (m *Metrics) Emit(_ context.Context, event observe.Event) error {
	if m == nil {
		return nil
	}
	switch event.Name {
	case "completed", "failed":
		if event.Kind != observe.KindRun {
			return nil
		}
		m.Runs.WithLabelValues(event.Name).Inc()
		if event.DurationMs > 0 {
			m.RunDuration.WithLabelValues(event.Name).Observe(float64(event.DurationMs) / 1000)
		}
	case "after_tool":
		tool := label(event.ToolName)
		m.ToolCalls.WithLabelValues(tool, outcome(event)).Inc()
		if event.DurationMs > 0 {
			m.ToolDuration.WithLabelValues(tool).Observe(float64(event.DurationMs) / 1000)
		}
	case "after_decide":
		m.OracleCalls.WithLabelValues("decide", outcome(event)).Inc()
	case "after_write":
		m.OracleCalls.WithLabelValues("write", outcome(event)).Inc()
	case "degraded":
		m.Degraded.WithLabelValues(label(event.State)).Inc()
	case "report_persisted":
		for _, severity := range []string{"high", "medium", "low"} {
			if n := count(event.Attributes[severity]); n > 0 {
				m.Findings.WithLabelValues(severity).Add(float64(n))
			}
		}
	}
	return nil
}

func outcome(event observe.Event) string {
	if event.Error != "" {
		return "error"
	}
	return "ok"
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func count(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var out int
		_, _ = fmt.Sscanf(n, "%d", &out)
		return out
	}
	return 0
}
