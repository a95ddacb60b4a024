package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

var promptExts = []string{".yaml", ".yml", ".json"}

// LoadDir registers prompt files from path into the global registry.
func LoadDir(path string) (int, error) { return global.LoadDir(path) }

// LoadDir registers every .yaml, .yml and .json file in path, in name order.
// A missing directory is not an error. A bad file is reported but does not
// stop the others from loading.
func (r *Registry) LoadDir(path string) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read prompt dir: %w", err)
	}

	var (
		loaded int
		errs   []error
	)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !slices.Contains(promptExts, ext) {
			continue
		}
		spec, err := decodeSpecFile(filepath.Join(path, entry.Name()))
		if err == nil {
			err = r.Register(spec)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	return loaded, errors.Join(errs...)
}

// decodeSpecFile reads JSON through the YAML decoder, which accepts both. The
// file name stands in for a missing name.
func decodeSpecFile(path string) (Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read prompt file %q: %w", path, err)
	}
	var spec Spec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode prompt file %q: %w", path, err)
	}
	if strings.TrimSpace(spec.Name) == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return spec, nil
}
