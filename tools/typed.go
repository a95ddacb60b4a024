package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// NewTyped builds a tool whose argument schema is reflected from A.
// Fields without `omitempty` are required; `jsonschema:"description=..."` tags are honoured.
func NewTyped[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) *FuncTool {
	return NewFuncTool(name, description, SchemaFor[A](), func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
		}
		return fn(ctx, args)
	})
}

// SchemaFor reflects T into an inline JSON schema object.
func SchemaFor[T any]() map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	raw, err := json.Marshal(r.Reflect(new(T)))
	if err != nil {
		return map[string]any{"type": "object"}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}
