// Package observe carries loop events to logs, traces and metrics.
package observe

import "time"

// Kind groups events by the part of the loop that produced them.
type Kind string

const (
	KindRun    Kind = "run"
	KindState  Kind = "state"
	KindOracle Kind = "oracle"
	KindTool   Kind = "tool"
	KindReport Kind = "report"
	KindCustom Kind = "custom"
)

type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusDegraded  Status = "degraded"
	StatusFailed    Status = "failed"
)

// Event is the sink-facing form of a loop event. RunID and Input identify the
// scan; SpanID and ParentSpanID let tracing sinks nest tool calls under the
// THINK step that requested them.
type Event struct {
	Timestamp    time.Time      `json:"timestamp"`
	RunID        string         `json:"runId,omitempty"`
	Input        string         `json:"input,omitempty"`
	SpanID       string         `json:"spanId,omitempty"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Kind         Kind           `json:"kind"`
	Status       Status         `json:"status,omitempty"`
	Name         string         `json:"name,omitempty"`
	State        string         `json:"state,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	ToolName     string         `json:"toolName,omitempty"`
	Message      string         `json:"message,omitempty"`
	Error        string         `json:"error,omitempty"`
	DurationMs   int64          `json:"durationMs,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// Troubled reports whether the event records a degradation or failure.
func (e Event) Troubled() bool {
	return e.Status == StatusDegraded || e.Status == StatusFailed
}

// Normalize fills a UTC timestamp, a kind and an attribute map.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	switch {
	case e.Timestamp.IsZero():
		e.Timestamp = time.Now().UTC()
	case e.Timestamp.Location() != time.UTC:
		e.Timestamp = e.Timestamp.UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]any, 1)
	}
}
