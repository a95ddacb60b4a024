package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrMissingVariable = errors.New("missing prompt variable")

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Render substitutes {{name}} tokens. Values are inserted verbatim and never
// re-scanned, so artifact content containing braces is safe.
func Render(template string, vars map[string]string) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("template is required")
	}
	var missing []string
	out := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := tokenPattern.FindStringSubmatch(match)[1]
		value, ok := vars[key]
		if !ok {
			if !contains(missing, key) {
				missing = append(missing, key)
			}
			return ""
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}
	return out, nil
}

// RenderNamed resolves ref in the global registry and renders it.
func RenderNamed(ref string, vars map[string]string) (string, error) {
	spec, ok := Resolve(ref)
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", ref)
	}
	return Render(spec.Text, vars)
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
