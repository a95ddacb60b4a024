// Package oracle wraps the remote reasoning service. Every call is bounded by a
// timeout and degrades to an empty final answer instead of failing.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/AnkitD0811/cloud-security-scanner/llm"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

const defaultTimeout = 60 * time.Second

var (
	ErrOracleTimeout     = errors.New("oracle call timed out")
	ErrMalformedResponse = errors.New("oracle returned a malformed response")
	ErrOracleUnavailable = errors.New("oracle call failed")
)

type Kind string

const (
	KindToolCalls   Kind = "tool_calls"
	KindFinalAnswer Kind = "final_answer"
)

// Decision is either ToolCalls or FinalAnswer. Err is set when the adapter
// substituted the empty FinalAnswer sentinel for a failed call.
type Decision struct {
	Kind      Kind
	ToolCalls []types.ToolCall
	Text      string
	Message   types.Message
	Usage     *types.Usage
	Err       error
}

func FinalAnswer(text string) Decision {
	return Decision{
		Kind:    KindFinalAnswer,
		Text:    text,
		Message: types.Message{Role: types.RoleAssistant, Content: text},
	}
}

func ToolCalls(calls []types.ToolCall) Decision {
	return Decision{
		Kind:      KindToolCalls,
		ToolCalls: calls,
		Message:   types.Message{Role: types.RoleAssistant, ToolCalls: calls},
	}
}

func (d Decision) Degraded() bool { return d.Err != nil }

// WantsTools reports whether the loop should enter ACT.
func (d Decision) WantsTools() bool {
	return d.Kind == KindToolCalls && len(d.ToolCalls) > 0
}

type Adapter struct {
	provider        llm.Provider
	timeout         time.Duration
	model           string
	maxOutputTokens int
	newID           func() string
}

type Option func(*Adapter)

// WithTimeout bounds every oracle call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		if timeout >= 0 {
			a.timeout = timeout
		}
	}
}

func WithModel(model string) Option {
	return func(a *Adapter) { a.model = strings.TrimSpace(model) }
}

func WithMaxOutputTokens(max int) Option {
	return func(a *Adapter) {
		if max > 0 {
			a.maxOutputTokens = max
		}
	}
}

// WithIDGenerator replaces the generator for call IDs the oracle omitted.
func WithIDGenerator(fn func() string) Option {
	return func(a *Adapter) {
		if fn != nil {
			a.newID = fn
		}
	}
}

func New(provider llm.Provider, opts ...Option) (*Adapter, error) {
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	if !provider.Capabilities().Tools {
		return nil, fmt.Errorf("%w: %s cannot call tools", llm.ErrNotSupported, provider.Name())
	}
	a := &Adapter{
		provider: provider,
		timeout:  defaultTimeout,
		newID:    func() string { return "call_" + xid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) ProviderName() string { return a.provider.Name() }

func (a *Adapter) Timeout() time.Duration { return a.timeout }

// Decide asks the oracle for the next step given the conversation so far.
func (a *Adapter) Decide(ctx context.Context, system string, messages []types.Message, defs []types.ToolDefinition) Decision {
	resp, err := a.generate(ctx, types.Request{
		Model:           a.model,
		SystemPrompt:    system,
		Messages:        messages,
		Tools:           defs,
		MaxOutputTokens: a.maxOutputTokens,
	})
	if err != nil {
		d := FinalAnswer("")
		d.Err = err
		return d
	}

	if len(resp.Message.ToolCalls) == 0 {
		d := FinalAnswer(strings.TrimSpace(resp.Message.Content))
		d.Message.Reasoning = resp.Message.Reasoning
		d.Usage = resp.Usage
		return d
	}

	calls, err := a.normalizeCalls(resp.Message.ToolCalls)
	if err != nil {
		d := FinalAnswer("")
		d.Err = err
		d.Usage = resp.Usage
		return d
	}
	d := ToolCalls(calls)
	d.Message.Content = strings.TrimSpace(resp.Message.Content)
	d.Message.Reasoning = resp.Message.Reasoning
	d.Usage = resp.Usage
	return d
}

// WriteRequest is the input to the report-writing call.
type WriteRequest struct {
	System string
	Prompt string
	Schema map[string]any
}

// Summarize runs the WRITE-state call and returns the oracle's raw text. The
// schema is dropped for providers without structured output; the report
// parser copes with free-form answers.
func (a *Adapter) Summarize(ctx context.Context, req WriteRequest) (string, *types.Usage, error) {
	if !a.provider.Capabilities().StructuredOutput {
		req.Schema = nil
	}
	resp, err := a.generate(ctx, types.Request{
		Model:           a.model,
		SystemPrompt:    req.System,
		Messages:        []types.Message{{Role: types.RoleUser, Content: req.Prompt}},
		MaxOutputTokens: a.maxOutputTokens,
		ResponseSchema:  req.Schema,
	})
	if err != nil {
		return "", nil, err
	}
	return resp.Message.Content, resp.Usage, nil
}

type generated struct {
	resp types.Response
	err  error
}

func (a *Adapter) generate(ctx context.Context, req types.Request) (types.Response, error) {
	callCtx := ctx
	cancel := func() {}
	if a.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
	}
	defer cancel()

	done := make(chan generated, 1)
	go func() {
		resp, err := a.provider.Generate(callCtx, req)
		done <- generated{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return types.Response{}, fmt.Errorf("%w: %v", ErrOracleTimeout, out.err)
			}
			return types.Response{}, fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, a.provider.Name(), out.err)
		}
		return out.resp, nil
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return types.Response{}, fmt.Errorf("%w after %s", ErrOracleTimeout, a.timeout)
		}
		return types.Response{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, callCtx.Err())
	}
}

func (a *Adapter) normalizeCalls(in []types.ToolCall) ([]types.ToolCall, error) {
	out := make([]types.ToolCall, 0, len(in))
	seen := map[string]bool{}
	for i, call := range in {
		name := strings.TrimSpace(call.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call %d has no name", ErrMalformedResponse, i)
		}
		args := call.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		if !json.Valid(args) {
			return nil, fmt.Errorf("%w: tool call %q has non-JSON arguments", ErrMalformedResponse, name)
		}
		id := strings.TrimSpace(call.ID)
		if id == "" || seen[id] {
			id = a.newID()
		}
		seen[id] = true
		out = append(out, types.ToolCall{ID: id, Name: name, Arguments: append(json.RawMessage(nil), args...)})
	}
	return out, nil
}
