package tools

import "context"

// RunInfo is run-scoped data a tool may read without the oracle having to pass it.
type RunInfo struct {
	RunID string
	Name  string
	// Input is the artifact under scan. Tools read no other file.
	Input string
	// ArtifactDir is the only directory tools may write to.
	ArtifactDir string
}

type runInfoKey struct{}

func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
