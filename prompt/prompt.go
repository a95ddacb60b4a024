// Package prompt holds the named instruction texts sent to the oracle.
package prompt

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
)

// Spec is one named, versioned prompt text.
type Spec struct {
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Text        string   `json:"text" yaml:"text"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Registry maps prompt names to their versions, newest last.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]Spec
}

func NewRegistry() *Registry {
	return &Registry{versions: map[string][]Spec{}}
}

var global = NewRegistry()

func Register(spec Spec) error { return global.Register(spec) }

func MustRegister(spec Spec) {
	if err := Register(spec); err != nil {
		panic(err)
	}
}

func Resolve(ref string) (Spec, bool) { return global.Resolve(ref) }
func Names() []string                 { return global.Names() }

// Text returns the latest text registered under ref, or "" when unknown.
func Text(ref string) string {
	spec, _ := Resolve(ref)
	return spec.Text
}

// Register adds or replaces spec. A spec with an existing name and version
// replaces it, so files loaded from disk override the built-ins.
func (r *Registry) Register(spec Spec) error {
	spec, err := normalize(spec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := slices.DeleteFunc(r.versions[spec.Name], func(s Spec) bool { return s.Version == spec.Version })
	list = append(list, spec)
	slices.SortStableFunc(list, func(a, b Spec) int { return compareVersions(a.Version, b.Version) })
	r.versions[spec.Name] = list
	return nil
}

// Resolve accepts "name" (newest version) or "name@version".
func (r *Registry) Resolve(ref string) (Spec, bool) {
	name, version := splitRef(ref)
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.versions[name]
	if len(list) == 0 {
		return Spec{}, false
	}
	if version == "" {
		return list[len(list)-1], true
	}
	i := slices.IndexFunc(list, func(s Spec) bool { return s.Version == version })
	if i < 0 {
		return Spec{}, false
	}
	return list[i], true
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.versions))
}

// compareVersions orders semver-looking versions ("v2" < "v10") by semver and
// anything else lexically after them.
func compareVersions(a, b string) int {
	va, vb := semver.IsValid(a), semver.IsValid(b)
	switch {
	case va && vb:
		return semver.Compare(a, b)
	case va:
		return -1
	case vb:
		return 1
	}
	return strings.Compare(a, b)
}

var identPattern = regexp.MustCompile(`^[a-z0-9._-]+$`)

func normalize(spec Spec) (Spec, error) {
	spec.Name = strings.ToLower(strings.TrimSpace(spec.Name))
	spec.Version = strings.ToLower(strings.TrimSpace(spec.Version))
	spec.Description = strings.TrimSpace(spec.Description)
	spec.Text = strings.TrimSpace(spec.Text)
	if spec.Version == "" {
		spec.Version = "v1"
	}
	switch {
	case spec.Name == "":
		return Spec{}, fmt.Errorf("prompt name is required")
	case spec.Text == "":
		return Spec{}, fmt.Errorf("prompt %q has empty text", spec.Name)
	case !identPattern.MatchString(spec.Name):
		return Spec{}, fmt.Errorf("prompt name %q must match [a-z0-9._-]", spec.Name)
	case !identPattern.MatchString(spec.Version):
		return Spec{}, fmt.Errorf("prompt version %q must match [a-z0-9._-]", spec.Version)
	}
	return spec, nil
}

func splitRef(ref string) (name, version string) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	name, version, _ = strings.Cut(ref, "@")
	return strings.TrimSpace(name), strings.TrimSpace(version)
}
