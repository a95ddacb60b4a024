package agent

import (
	"context"
	"time"

	"github.com/AnkitD0811/cloud-security-scanner/guard"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

// Middleware sees every tool invocation of the ACT state. BeforeTool may
// rewrite the call's arguments; an error from it becomes the call's result.
// AfterTool may rewrite the result. The call ID and tool name are restored
// after each hook so attribution cannot drift.
type Middleware interface {
	BeforeTool(ctx context.Context, event *ToolEvent) error
	AfterTool(ctx context.Context, event *ToolEvent) error
}

type ToolEvent struct {
	RunID      string
	Iteration  int
	StartedAt  time.Time
	FinishedAt time.Time
	Call       types.ToolCall
	Result     types.ToolResult
}

// NoopMiddleware can be embedded to implement only one hook.
type NoopMiddleware struct{}

func (NoopMiddleware) BeforeTool(context.Context, *ToolEvent) error { return nil }

func (NoopMiddleware) AfterTool(context.Context, *ToolEvent) error { return nil }

// MiddlewareFuncs adapts plain functions. Nil fields are skipped.
type MiddlewareFuncs struct {
	Before func(ctx context.Context, event *ToolEvent) error
	After  func(ctx context.Context, event *ToolEvent) error
}

func (m MiddlewareFuncs) BeforeTool(ctx context.Context, event *ToolEvent) error {
	if m.Before == nil {
		return nil
	}
	return m.Before(ctx, event)
}

func (m MiddlewareFuncs) AfterTool(ctx context.Context, event *ToolEvent) error {
	if m.After == nil {
		return nil
	}
	return m.After(ctx, event)
}

// RedactToolOutput scrubs secrets from scanner output. Scanners echo code
// blocks from the artifact, so this closes the same leak the INIT redaction does.
func RedactToolOutput(redactor *guard.Redactor) Middleware {
	return MiddlewareFuncs{After: func(_ context.Context, event *ToolEvent) error {
		if redactor == nil || event.Result.Output == "" {
			return nil
		}
		if res := redactor.Redact(event.Result.Output); res.Count > 0 {
			event.Result.Output = res.Text
		}
		return nil
	}}
}

func (a *Agent) runBeforeTool(ctx context.Context, event *ToolEvent) error {
	call := event.Call
	defer func() {
		event.Call.ID, event.Call.Name = call.ID, call.Name
	}()
	for _, mw := range a.middlewares {
		if err := mw.BeforeTool(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) runAfterTool(ctx context.Context, event *ToolEvent) error {
	defer func() {
		event.Result.CallID, event.Result.Name = event.Call.ID, event.Call.Name
	}()
	for _, mw := range a.middlewares {
		if err := mw.AfterTool(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
