package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Factory func() Tool

type Bundle struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools"`
}

type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

var (
	regMu         sync.RWMutex
	toolFactories = map[string]Factory{}
	toolDescs     = map[string]string{}
	bundles       = map[string]Bundle{}
)

func RegisterTool(name, description string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if factory == nil {
		return fmt.Errorf("tool factory is required")
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := toolFactories[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	toolFactories[name] = factory
	toolDescs[name] = strings.TrimSpace(description)
	return nil
}

func MustRegisterTool(name, description string, factory Factory) {
	if err := RegisterTool(name, description, factory); err != nil {
		panic(err)
	}
}

func RegisterBundle(name, description string, toolNames []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("bundle name is required")
	}
	cleaned := make([]string, 0, len(toolNames))
	for _, t := range toolNames {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return fmt.Errorf("bundle %q has no tools", name)
	}

	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := bundles[name]; exists {
		return fmt.Errorf("bundle %q already registered", name)
	}
	bundles[name] = Bundle{Name: name, Description: strings.TrimSpace(description), Tools: cleaned}
	return nil
}

func MustRegisterBundle(name, description string, toolNames []string) {
	if err := RegisterBundle(name, description, toolNames); err != nil {
		panic(err)
	}
}

func ToolCatalog() []ToolInfo {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]ToolInfo, 0, len(toolFactories))
	for name := range toolFactories {
		out = append(out, ToolInfo{Name: name, Description: toolDescs[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ToolSchema instantiates the named tool to read its argument schema.
func ToolSchema(name string) (map[string]any, bool) {
	regMu.RLock()
	factory, ok := toolFactories[name]
	regMu.RUnlock()
	if !ok {
		return nil, false
	}
	t := factory()
	if t == nil {
		return nil, false
	}
	return t.Definition().JSONSchema, true
}

func BundleCatalog() []Bundle {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]Bundle, 0, len(bundles))
	for _, bundle := range bundles {
		out = append(out, Bundle{
			Name:        bundle.Name,
			Description: bundle.Description,
			Tools:       append([]string(nil), bundle.Tools...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BuildSelection instantiates tools by name. Entries may be "@bundle" or "*".
func BuildSelection(selection []string) ([]Tool, error) {
	names, err := expandSelection(selection)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		factory, ok := toolFactories[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
		}
		tool := factory()
		if tool == nil {
			return nil, fmt.Errorf("tool %q factory returned nil", name)
		}
		out = append(out, tool)
	}
	return out, nil
}

// NewRegistryFromSelection builds a Registry holding the selected catalog tools.
func NewRegistryFromSelection(selection []string, opts ...RegistryOption) (*Registry, error) {
	selected, err := BuildSelection(selection)
	if err != nil {
		return nil, err
	}
	reg := NewRegistry(opts...)
	for _, tool := range selected {
		if err := reg.Register(tool); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func expandSelection(selection []string) ([]string, error) {
	regMu.RLock()
	defer regMu.RUnlock()

	ordered := make([]string, 0, len(selection))
	seen := map[string]bool{}
	appendName := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		ordered = append(ordered, name)
	}

	for _, raw := range selection {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
			continue
		case strings.HasPrefix(entry, "@"):
			bundleName := strings.TrimPrefix(entry, "@")
			bundle, ok := bundles[bundleName]
			if !ok {
				return nil, fmt.Errorf("unknown tool bundle %q", bundleName)
			}
			for _, n := range bundle.Tools {
				appendName(n)
			}
		case entry == "*":
			all := make([]string, 0, len(toolFactories))
			for n := range toolFactories {
				all = append(all, n)
			}
			sort.Strings(all)
			for _, n := range all {
				appendName(n)
			}
		default:
			appendName(entry)
		}
	}
	return ordered, nil
}
