package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/AnkitD0811/cloud-security-scanner/types"
)

// act runs every requested call and returns exactly one result per call, in
// request order. Failures are results, never errors.
func (a *Agent) act(ctx context.Context, r *run, iteration int, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	if a.parallelTools && len(calls) > 1 {
		var wg sync.WaitGroup
		wg.Add(len(calls))
		for i, call := range calls {
			go func(i int, call types.ToolCall) {
				defer wg.Done()
				results[i] = a.invoke(ctx, r, iteration, call)
			}(i, call)
		}
		wg.Wait()
	} else {
		for i, call := range calls {
			results[i] = a.invoke(ctx, r, iteration, call)
		}
	}

	for _, res := range results {
		if res.Failed() {
			a.degrade(r, StateAct, fmt.Errorf("tool %s (%s): %s", res.Name, res.CallID, res.Error))
		}
	}
	r.results = append(r.results, results...)
	return results
}

// invoke is safe to call concurrently; it only reads run fields.
func (a *Agent) invoke(ctx context.Context, r *run, iteration int, call types.ToolCall) (res types.ToolResult) {
	defer func() {
		if p := recover(); p != nil {
			res = types.ToolResult{CallID: call.ID, Name: call.Name, Error: fmt.Sprintf("tool middleware panicked: %v", p)}
		}
	}()

	event := &ToolEvent{RunID: r.id, Iteration: iteration, StartedAt: a.now().UTC(), Call: call}
	a.emit(r, types.Event{
		Type:       types.EventBeforeTool,
		State:      string(StateAct),
		Iteration:  iteration,
		ToolName:   call.Name,
		ToolCallID: call.ID,
	})

	if err := a.runBeforeTool(ctx, event); err != nil {
		event.Result = types.ToolResult{Error: err.Error()}
	} else {
		event.Result = a.registry.Invoke(ctx, event.Call)
	}
	event.FinishedAt = a.now().UTC()
	if err := a.runAfterTool(ctx, event); err != nil {
		event.Result = types.ToolResult{CallID: call.ID, Name: call.Name, Error: err.Error()}
	}
	res = event.Result
	res.CallID, res.Name = call.ID, call.Name

	after := types.Event{
		Type:       types.EventAfterTool,
		State:      string(StateAct),
		Iteration:  iteration,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		DurationMs: event.FinishedAt.Sub(event.StartedAt).Milliseconds(),
	}
	if res.Failed() {
		after.Error = res.Error
	}
	a.emit(r, after)
	return res
}
