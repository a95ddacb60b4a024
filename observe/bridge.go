package observe

import (
	"fmt"
	"strings"

	"github.com/AnkitD0811/cloud-security-scanner/types"
)

// FromRuntimeEvent maps a loop event onto the sink event model.
func FromRuntimeEvent(in types.Event) Event {
	e := Event{
		Timestamp:  in.Timestamp,
		RunID:      in.RunID,
		Input:      in.Input,
		State:      in.State,
		Provider:   in.Provider,
		ToolName:   in.ToolName,
		Message:    in.Message,
		Error:      in.Error,
		DurationMs: in.DurationMs,
		Name:       strings.TrimPrefix(string(in.Type), "run."),
		Attributes: map[string]any{"eventType": string(in.Type)},
	}
	for k, v := range in.Attributes {
		e.Attributes[k] = v
	}
	if in.Iteration > 0 {
		e.Attributes["iteration"] = in.Iteration
	}
	if in.ToolCallID != "" {
		e.Attributes["toolCallId"] = in.ToolCallID
	}

	switch in.Type {
	case types.EventBeforeDecide, types.EventAfterDecide, types.EventBeforeWrite, types.EventAfterWrite:
		e.Kind = KindOracle
	case types.EventBeforeTool, types.EventAfterTool:
		e.Kind = KindTool
	case types.EventStateEntered:
		e.Kind = KindState
	case types.EventReportPersisted:
		e.Kind = KindReport
	default:
		e.Kind = KindRun
	}

	switch in.Type {
	case types.EventRunStarted, types.EventBeforeDecide, types.EventBeforeTool, types.EventBeforeWrite:
		e.Status = StatusStarted
	case types.EventDegraded:
		e.Status = StatusDegraded
	case types.EventRunFailed:
		e.Status = StatusFailed
	default:
		e.Status = StatusCompleted
	}
	if in.Error != "" && e.Status == StatusCompleted {
		e.Status = StatusDegraded
	}

	e.SpanID = spanIDFor(in)
	e.ParentSpanID = parentSpanIDFor(in)
	e.Normalize()
	return e
}

func spanIDFor(in types.Event) string {
	if in.RunID == "" {
		return ""
	}
	switch {
	case in.ToolCallID != "":
		return fmt.Sprintf("%s:tool:%d:%s", in.RunID, in.Iteration, in.ToolCallID)
	case in.Type == types.EventBeforeWrite || in.Type == types.EventAfterWrite:
		return in.RunID + ":write"
	case in.Iteration > 0:
		return fmt.Sprintf("%s:think:%d", in.RunID, in.Iteration)
	}
	return in.RunID
}

func parentSpanIDFor(in types.Event) string {
	if in.RunID == "" {
		return ""
	}
	switch {
	case in.ToolCallID != "":
		return fmt.Sprintf("%s:think:%d", in.RunID, in.Iteration)
	case in.Iteration > 0, in.Type == types.EventBeforeWrite, in.Type == types.EventAfterWrite:
		return in.RunID
	}
	return ""
}
