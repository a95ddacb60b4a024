package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const defaultMaxOutput = 8 * 1024 * 1024

// Output is what one scanner process produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner starts scanner binaries. Tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

type RunnerFunc func(ctx context.Context, name string, args ...string) (Output, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) (Output, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs binaries through os/exec. A non-zero exit is not an error:
// scanners exit 1 when checks fail.
type ExecRunner struct {
	Dir       string
	MaxOutput int
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	max := r.MaxOutput
	if max <= 0 {
		max = defaultMaxOutput
	}
	out := Output{
		Stdout:   limitOutput(stdout.Bytes(), max),
		Stderr:   limitOutput(stderr.Bytes(), 64*1024),
		Duration: time.Since(start),
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("%s: %w", name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func limitOutput(b []byte, maxLen int) []byte {
	if len(b) > maxLen {
		return b[:maxLen]
	}
	return b
}
