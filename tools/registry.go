package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/AnkitD0811/cloud-security-scanner/types"
)

var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrToolTimeout      = errors.New("tool timed out")
	ErrToolPanic        = errors.New("tool panicked")
)

// Registry maps tool names to executable actions. It is read-only once a run starts.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*gojsonschema.Schema
	timeout    time.Duration
}

type RegistryOption func(*Registry)

// WithInvokeTimeout bounds each Invoke call. Zero disables the bound.
func WithInvokeTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout >= 0 {
			r.timeout = timeout
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:      map[string]Tool{},
		validators: map[string]*gojsonschema.Schema{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is required")
	}
	def := tool.Definition()
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}

	var validator *gojsonschema.Schema
	if len(def.JSONSchema) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.JSONSchema))
		if err != nil {
			return fmt.Errorf("tool %q has an invalid schema: %w", name, err)
		}
		validator = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	if validator != nil {
		r.validators[name] = validator
	}
	return nil
}

func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	return tool, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions returns the tool definitions sorted by name.
func (r *Registry) Definitions() []types.ToolDefinition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].Definition())
	}
	return out
}

// Invoke executes call and always returns a result carrying call.ID.
// Unknown tools, bad arguments, timeouts, errors and panics all end up in ToolResult.Error.
func (r *Registry) Invoke(ctx context.Context, call types.ToolCall) types.ToolResult {
	result := types.ToolResult{CallID: call.ID, Name: call.Name}

	tool, err := r.Resolve(call.Name)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	args := call.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	if err := r.validate(call.Name, args); err != nil {
		result.Error = err.Error()
		return result
	}

	out, err := r.execute(ctx, tool, args)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	encoded, err := encodeOutput(out)
	if err != nil {
		result.Error = fmt.Sprintf("failed to encode tool output: %v", err)
		return result
	}
	result.Output = encoded
	return result
}

func (r *Registry) validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	validator := r.validators[name]
	r.mu.RUnlock()
	if validator == nil {
		return nil
	}
	res, err := validator.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(problems, "; "))
}

type execOutcome struct {
	out any
	err error
}

func (r *Registry) execute(ctx context.Context, tool Tool, args json.RawMessage) (any, error) {
	toolCtx := ctx
	cancel := func() {}
	if r.timeout > 0 {
		toolCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- execOutcome{err: fmt.Errorf("%w: %v", ErrToolPanic, p)}
			}
		}()
		out, err := tool.Execute(toolCtx, args)
		done <- execOutcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-toolCtx.Done():
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrToolTimeout, r.timeout)
		}
		return nil, toolCtx.Err()
	}
}

func encodeOutput(out any) (string, error) {
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
