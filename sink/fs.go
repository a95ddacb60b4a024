package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnkitD0811/cloud-security-scanner/report"
)

const maxCollisions = 100

// FS writes <root>/<name>/<name>.json. Existing files are never overwritten;
// a numeric suffix is added instead.
type FS struct {
	root string
}

func NewFS(root string) *FS {
	if strings.TrimSpace(root) == "" {
		root = "output"
	}
	return &FS{root: root}
}

func (s *FS) Root() string { return s.root }

// Dir is the per-report directory, also used for scanner artifacts.
func (s *FS) Dir(name string) string {
	return filepath.Join(s.root, name)
}

func (s *FS) Persist(ctx context.Context, r report.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(r.Name) == "" {
		return "", fmt.Errorf("report name is required")
	}
	raw, err := report.EncodeJSON(r)
	if err != nil {
		return "", err
	}

	dir := s.Dir(r.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	for i := 0; i < maxCollisions; i++ {
		name := r.Name + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.json", r.Name, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create report file: %w", err)
		}
		if _, err := f.Write(raw); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write report file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close report file: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("report %q: too many existing files in %s", r.Name, dir)
}
