package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnkitD0811/cloud-security-scanner/tools"
)

const (
	Checkov = "checkov"
	Tfsec   = "tfsec"
	Trivy   = "trivy"
)

// ErrOutOfScope is returned when a call names a file or directory outside the
// current run.
var ErrOutOfScope = errors.New("path outside the current scan")

// Args is the argument contract shared by every scanner tool.
type Args struct {
	FilePath       string `json:"file_path" jsonschema:"description=Path to the IaC file to scan"`
	OutputDir      string `json:"output_dir,omitempty" jsonschema:"description=Directory where the normalized scanner output is saved"`
	OutputFileName string `json:"output_file_name,omitempty" jsonschema:"description=Base name for the saved output file"`
}

// Result is returned to the oracle as the observation for one scan.
type Result struct {
	Tool     string  `json:"tool"`
	Target   string  `json:"target"`
	Failed   int     `json:"failed"`
	Checks   []Check `json:"failed_checks"`
	SavedTo  string  `json:"saved_to,omitempty"`
	ExitCode int     `json:"exit_code"`
}

// Scanner wraps one static-analysis binary as a tool.
type Scanner struct {
	name        string
	description string
	binary      string
	argv        func(target string) []string
	targetDir   bool
	runner      Runner
	outputDir   string
}

type Option func(*Scanner)

func WithRunner(runner Runner) Option {
	return func(s *Scanner) {
		if runner != nil {
			s.runner = runner
		}
	}
}

func WithBinary(path string) Option {
	return func(s *Scanner) {
		if strings.TrimSpace(path) != "" {
			s.binary = strings.TrimSpace(path)
		}
	}
}

// WithOutputDir sets where results are saved when neither the call nor the run supplies a directory.
func WithOutputDir(dir string) Option {
	return func(s *Scanner) { s.outputDir = dir }
}

func NewCheckov(opts ...Option) *Scanner {
	return build(&Scanner{
		name:        Checkov,
		description: "Run a Checkov static analysis scan on a local IaC file (Terraform, CloudFormation, Kubernetes, Dockerfile) and return its failed checks.",
		binary:      "checkov",
		argv: func(target string) []string {
			return []string{"-f", target, "-o", "json", "--quiet", "--compact"}
		},
	}, opts)
}

func NewTfsec(opts ...Option) *Scanner {
	return build(&Scanner{
		name:        Tfsec,
		description: "Run a tfsec scan over the directory containing a Terraform file and return its failed checks.",
		binary:      "tfsec",
		targetDir:   true,
		argv: func(target string) []string {
			return []string{target, "--format", "json", "--no-colour"}
		},
	}, opts)
}

func NewTrivy(opts ...Option) *Scanner {
	return build(&Scanner{
		name:        Trivy,
		description: "Run a Trivy misconfiguration scan on a local IaC file and return its failed checks.",
		binary:      "trivy",
		argv: func(target string) []string {
			return []string{"config", "--format", "json", "--quiet", target}
		},
	}, opts)
}

func build(s *Scanner, opts []Option) *Scanner {
	s.runner = ExecRunner{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scanner) Name() string { return s.name }

// Tool exposes the scanner through the tool registry.
func (s *Scanner) Tool() tools.Tool {
	return tools.NewTyped(s.name, s.description, s.Scan)
}

func (s *Scanner) Scan(ctx context.Context, args Args) (any, error) {
	path, dir, err := s.scope(ctx, args)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: cannot read %s: %w", s.name, path, err)
	}

	target := path
	if s.targetDir {
		target = filepath.Dir(path)
	}
	out, err := s.runner.Run(ctx, s.binary, s.argv(target)...)
	if err != nil {
		return nil, fmt.Errorf("%s failed to run: %w", s.name, err)
	}
	if len(strings.TrimSpace(string(out.Stdout))) == 0 && out.ExitCode != 0 {
		return nil, fmt.Errorf("%s exited with code %d: %s", s.name, out.ExitCode, strings.TrimSpace(string(out.Stderr)))
	}

	checks, err := Normalize(out.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	result := Result{
		Tool:     s.name,
		Target:   target,
		Failed:   len(checks),
		Checks:   checks,
		ExitCode: out.ExitCode,
	}
	if dir != "" {
		saved, err := saveChecks(dir, s.name+"_"+s.outputName(ctx, args, path)+".json", checks)
		if err != nil {
			return nil, err
		}
		result.SavedTo = saved
	}
	return result, nil
}

// scope resolves the scan target and the output directory. Inside a run the
// target must be the run's artifact and output stays under the run's artifact
// directory; a relative output_dir is taken relative to it.
func (s *Scanner) scope(ctx context.Context, args Args) (path, dir string, err error) {
	path = strings.TrimSpace(args.FilePath)
	dir = strings.TrimSpace(args.OutputDir)
	info, inRun := tools.RunInfoFrom(ctx)

	if inRun && info.Input != "" {
		if path == "" {
			path = info.Input
		}
		if !samePath(path, info.Input) {
			return "", "", fmt.Errorf("%w: %s may only scan %s, not %s", ErrOutOfScope, s.name, info.Input, path)
		}
	}

	switch {
	case inRun && info.ArtifactDir != "":
		if dir == "" {
			dir = info.ArtifactDir
		} else if !filepath.IsAbs(dir) {
			dir = filepath.Join(info.ArtifactDir, dir)
		}
		if !within(info.ArtifactDir, dir) {
			return "", "", fmt.Errorf("%w: output_dir %s is outside %s", ErrOutOfScope, dir, info.ArtifactDir)
		}
	case dir == "":
		dir = s.outputDir
	}
	return path, dir, nil
}

func (s *Scanner) outputName(ctx context.Context, args Args, path string) string {
	base := strings.TrimSpace(args.OutputFileName)
	if info, ok := tools.RunInfoFrom(ctx); ok && base == "" {
		base = info.Name
	}
	if base == "" {
		base = strings.ReplaceAll(filepath.Base(path), ".", "_")
	}
	return filepath.Base(base)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func within(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func saveChecks(dir, name string, checks []Check) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scanner output dir: %w", err)
	}
	raw, err := json.MarshalIndent(checks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode scanner output: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("save scanner output: %w", err)
	}
	return path, nil
}
