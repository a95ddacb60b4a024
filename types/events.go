package types

import "time"

type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventStateEntered    EventType = "run.state_entered"
	EventBeforeDecide    EventType = "run.before_decide"
	EventAfterDecide     EventType = "run.after_decide"
	EventBeforeTool      EventType = "run.before_tool"
	EventAfterTool       EventType = "run.after_tool"
	EventBeforeWrite     EventType = "run.before_write"
	EventAfterWrite      EventType = "run.after_write"
	EventDegraded        EventType = "run.degraded"
	EventReportPersisted EventType = "run.report_persisted"
	EventRunCompleted    EventType = "run.completed"
	EventRunFailed       EventType = "run.failed"
)

type Event struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"runId,omitempty"`
	Input      string    `json:"input,omitempty"`
	State      string    `json:"state,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Iteration  int       `json:"iteration,omitempty"`
	ToolName   string    `json:"toolName,omitempty"`
	ToolCallID string    `json:"toolCallId,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
}
