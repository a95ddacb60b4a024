package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/AnkitD0811/cloud-security-scanner/guard"
	"github.com/AnkitD0811/cloud-security-scanner/oracle"
	"github.com/AnkitD0811/cloud-security-scanner/prompt"
	"github.com/AnkitD0811/cloud-security-scanner/report"
	"github.com/AnkitD0811/cloud-security-scanner/sink"
	"github.com/AnkitD0811/cloud-security-scanner/tools"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

// run holds the bookkeeping of one Run call. It is only touched from the
// goroutine driving the loop.
type run struct {
	id        string
	input     string
	name      string
	digest    string
	startedAt time.Time
	bg        context.Context

	seq           int
	iterations    int
	boundExceeded bool
	trace         []State
	degraded      []string
	note          string
	results       []types.ToolResult
	usage         types.Usage
	hasUsage      bool
}

func (r *run) fields(st State) []zap.Field {
	return []zap.Field{
		zap.String("run_id", r.id),
		zap.String("input", r.input),
		zap.String("state", string(st)),
	}
}

func (r *run) addUsage(u *types.Usage) {
	if u == nil {
		return
	}
	r.usage.Add(u)
	r.hasUsage = true
}

func (r *run) usageCopy() *types.Usage {
	if !r.hasUsage {
		return nil
	}
	u := r.usage
	return &u
}

// Run scans the artifact at path and persists the report. Only a persistence
// failure, a run timeout before any observation, or cancellation of ctx is
// returned as an error; every other problem degrades the report instead.
func (a *Agent) Run(ctx context.Context, path string) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := a.now().UTC()
	r := &run{
		id:        a.newRunID(),
		input:     path,
		name:      report.NameFor(path, startedAt),
		startedAt: startedAt,
		bg:        context.WithoutCancel(ctx),
	}
	ctx = tools.WithRunInfo(ctx, tools.RunInfo{RunID: r.id, Name: r.name, Input: path, ArtifactDir: a.artifactDir(r.name)})

	a.logger.Info("scan started", zap.String("run_id", r.id), zap.String("input", path), zap.String("report", r.name))
	a.emit(r, types.Event{Type: types.EventRunStarted})
	a.saveRun(r, runUpdate{status: statusRunning})

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, a.runTimeout)
	}
	defer cancel()

	cur := a.initialize(r, path)
	cur, err := a.loop(runCtx, r, cur)
	if err != nil {
		return a.fail(r, cur, err)
	}
	cur, findings := a.write(ctx, r, cur)
	return a.finish(ctx, r, cur, findings)
}

func (a *Agent) initialize(r *run, path string) step {
	cur := a.enter(r, step{state: StateInit})

	content, err := readArtifact(path)
	if err != nil {
		a.degrade(r, StateInit, fmt.Errorf("%w: %v", ErrInputRead, err))
	} else {
		r.digest = fmt.Sprintf("%016x", xxhash.Sum64String(content))
	}

	if a.redactor != nil && content != "" {
		if res := a.redactor.Redact(content); res.Count > 0 {
			content = res.Text
			a.logger.Info("redacted secrets from artifact",
				append(r.fields(StateInit), zap.Int("count", res.Count), zap.Strings("kinds", res.Kinds))...)
		}
	}
	if hits := guard.SuspectInjection(content); len(hits) > 0 {
		a.logger.Warn("artifact contains instruction-like text",
			append(r.fields(StateInit), zap.Strings("patterns", hits))...)
	}

	task, err := prompt.RenderNamed(prompt.ScanTask, map[string]string{"path": path, "content": content})
	if err != nil {
		a.degrade(r, StateInit, err)
		task = fmt.Sprintf("Assess the IaC file at %s for security misconfigurations.\n\n%s", path, content)
	}
	return cur.with(NewConversation(a.systemPrompt, task))
}

func readArtifact(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("no input path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD"), nil
}

// loop alternates THINK and ACT until the oracle stops asking for tools, the
// iteration bound is hit or the run deadline passes.
func (a *Agent) loop(ctx context.Context, r *run, cur step) (step, error) {
	defs := a.registry.Definitions()
	for {
		if err := ctx.Err(); err != nil {
			return cur, a.interrupted(r, cur, err)
		}
		if cur.iteration >= a.maxIterations {
			r.boundExceeded = true
			a.degrade(r, cur.state, fmt.Errorf("%w: stopped after %d iterations", ErrIterationBound, a.maxIterations))
			return cur, nil
		}

		cur = a.enter(r, step{state: StateThink, iteration: cur.iteration + 1, conv: cur.conv})
		r.iterations = cur.iteration
		d := a.decide(ctx, r, cur, defs)
		cur = cur.with(cur.conv.Append(d.Message))
		if d.Degraded() {
			if err := ctx.Err(); err != nil {
				return cur, a.interrupted(r, cur, err)
			}
			a.degrade(r, StateThink, d.Err)
			return cur, nil
		}
		if !d.WantsTools() {
			return cur, nil
		}

		cur = a.enter(r, cur.to(StateAct))
		results := a.act(ctx, r, cur.iteration, d.ToolCalls)
		cur = cur.with(cur.conv.Append(toolMessages(results)...))
	}
}

// interrupted maps a done run context onto the loop outcome. A run timeout
// with observations in hand continues to WRITE; anything else fails the run.
func (a *Agent) interrupted(r *run, cur step, err error) error {
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if len(r.results) == 0 {
		return fmt.Errorf("%w after %s with no observations", ErrRunTimeout, a.runTimeout)
	}
	a.degrade(r, cur.state, fmt.Errorf("%w after %s: writing partial report", ErrRunTimeout, a.runTimeout))
	return nil
}

func (a *Agent) decide(ctx context.Context, r *run, cur step, defs []types.ToolDefinition) oracle.Decision {
	system, msgs := cur.conv.split()
	a.emit(r, types.Event{Type: types.EventBeforeDecide, State: string(StateThink), Iteration: cur.iteration})
	start := a.now()
	d := a.oracle.Decide(ctx, system, msgs, defs)
	r.addUsage(d.Usage)

	ev := types.Event{
		Type:       types.EventAfterDecide,
		State:      string(StateThink),
		Iteration:  cur.iteration,
		Message:    string(d.Kind),
		DurationMs: a.now().Sub(start).Milliseconds(),
	}
	if d.WantsTools() {
		ev.Attributes = map[string]any{"tool_calls": len(d.ToolCalls)}
	}
	if d.Err != nil {
		ev.Error = d.Err.Error()
	}
	a.emit(r, ev)
	return d
}

func toolMessages(results []types.ToolResult) []types.Message {
	out := make([]types.Message, 0, len(results))
	for _, res := range results {
		out = append(out, types.Message{
			Role:       types.RoleTool,
			Name:       res.Name,
			ToolCallID: res.CallID,
			Content:    res.Content(),
		})
	}
	return out
}

func (a *Agent) write(ctx context.Context, r *run, cur step) (step, []report.Finding) {
	cur = a.enter(r, cur.to(StateWrite))
	if len(r.results) == 0 {
		a.logger.Info("no observations, skipping report writer", r.fields(StateWrite)...)
		return cur, nil
	}

	input, err := prompt.RenderNamed(prompt.ReportInput, map[string]string{
		"path":         r.input,
		"observations": formatObservations(r.results),
	})
	if err != nil {
		a.degrade(r, StateWrite, err)
		return cur, nil
	}

	a.emit(r, types.Event{Type: types.EventBeforeWrite, State: string(StateWrite)})
	start := a.now()
	raw, usage, err := a.oracle.Summarize(context.WithoutCancel(ctx), oracle.WriteRequest{
		System: a.writerPrompt,
		Prompt: input,
		Schema: report.ResponseSchema(),
	})
	r.addUsage(usage)
	ev := types.Event{Type: types.EventAfterWrite, State: string(StateWrite), DurationMs: a.now().Sub(start).Milliseconds()}
	if err != nil {
		ev.Error = err.Error()
	}
	a.emit(r, ev)
	if err != nil {
		a.degrade(r, StateWrite, err)
		return cur, nil
	}

	findings, err := report.ParseStrict(raw)
	if err != nil {
		a.degrade(r, StateWrite, err)
		return cur, nil
	}
	return cur, findings
}

func formatObservations(results []types.ToolResult) string {
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s (%s)\n%s", res.Name, res.CallID, res.Content())
	}
	return b.String()
}

func (a *Agent) finish(ctx context.Context, r *run, cur step, findings []report.Finding) (Result, error) {
	rep := report.Build(r.name, r.input, r.startedAt, findings)
	if err := report.Validate(rep); err != nil {
		a.degrade(r, StateWrite, err)
	}

	cur = a.enter(r, cur.to(StateDone))
	location, err := a.sink.Persist(context.WithoutCancel(ctx), rep)
	if err != nil {
		if location == "" || !errors.Is(err, sink.ErrMirror) {
			return a.fail(r, cur, fmt.Errorf("%w: %v", ErrPersist, err))
		}
		a.degrade(r, StateDone, err)
	}

	a.emit(r, types.Event{
		Type:    types.EventReportPersisted,
		State:   string(StateDone),
		Message: location,
		Attributes: map[string]any{
			"count":  rep.Summary.Count,
			"high":   rep.Summary.High,
			"medium": rep.Summary.Medium,
			"low":    rep.Summary.Low,
		},
	})

	res := a.result(r, cur, rep, location)
	a.saveRun(r, runUpdate{status: statusCompleted, reportPath: location, summary: &rep.Summary, completedAt: res.CompletedAt})
	a.emit(r, types.Event{
		Type:       types.EventRunCompleted,
		Message:    "scan completed",
		DurationMs: res.CompletedAt.Sub(r.startedAt).Milliseconds(),
	})
	a.logger.Info("scan finished",
		zap.String("run_id", r.id),
		zap.String("input", r.input),
		zap.String("report_path", location),
		zap.Int("iterations", r.iterations),
		zap.Stringer("summary", rep.Summary),
	)
	return res, nil
}

func (a *Agent) fail(r *run, cur step, err error) (Result, error) {
	res := a.result(r, cur, report.Report{}, "")
	a.logger.Error("scan failed", append(r.fields(cur.state), zap.Error(err))...)
	a.saveRun(r, runUpdate{status: statusFailed, err: err, completedAt: res.CompletedAt})
	a.emit(r, types.Event{
		Type:       types.EventRunFailed,
		State:      string(cur.state),
		Error:      err.Error(),
		Message:    "scan failed",
		DurationMs: res.CompletedAt.Sub(r.startedAt).Milliseconds(),
	})
	return res, err
}

func (a *Agent) result(r *run, cur step, rep report.Report, location string) Result {
	return Result{
		RunID:         r.id,
		Report:        rep,
		ReportPath:    location,
		Iterations:    r.iterations,
		BoundExceeded: r.boundExceeded,
		Observations:  append([]types.ToolResult(nil), r.results...),
		Messages:      cur.conv.Messages(),
		Trace:         append([]State(nil), r.trace...),
		Degraded:      append([]string(nil), r.degraded...),
		Usage:         r.usageCopy(),
		StartedAt:     r.startedAt,
		CompletedAt:   a.now().UTC(),
	}
}
