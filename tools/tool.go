package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/AnkitD0811/cloud-security-scanner/types"
)

// Tool is an executable action the oracle can request by name. Execute
// returns a JSON-encodable value or an error; the registry turns both into a
// ToolResult.
type Tool interface {
	Definition() types.ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// ExecuteFunc is the body of a FuncTool.
type ExecuteFunc func(ctx context.Context, args json.RawMessage) (any, error)

// FuncTool adapts a plain function to Tool.
type FuncTool struct {
	name        string
	description string
	schema      map[string]any
	run         ExecuteFunc
}

func NewFuncTool(name, description string, schema map[string]any, fn ExecuteFunc) *FuncTool {
	return &FuncTool{name: name, description: description, schema: schema, run: fn}
}

// Definition returns a copy so callers cannot mutate the advertised schema.
func (t *FuncTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		JSONSchema:  maps.Clone(t.schema),
	}
}

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if t.run == nil {
		return nil, fmt.Errorf("tool %q is not executable", t.name)
	}
	return t.run(ctx, args)
}
