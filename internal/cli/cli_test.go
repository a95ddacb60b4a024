package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AnkitD0811/cloud-security-scanner/internal/config"
	"github.com/AnkitD0811/cloud-security-scanner/llm"
	"github.com/AnkitD0811/cloud-security-scanner/scanner"
	"github.com/AnkitD0811/cloud-security-scanner/tools"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

const checkovOutput = `{"results": {"failed_checks": [{
  "check_id": "CKV_AWS_20", "check_name": "S3 Bucket allows public READ access",
  "file_line_range": [1, 4], "resource": "aws_s3_bucket.public"
}]}}`

const writerAnswer = `{"issues": [{"name": "Public S3 Bucket", "severity": "High", "location": [1, 4],
  "confidence_score": "High", "problems": ["Bucket is world readable"], "remedies": ["Set acl to private"]}]}`

// fakeProvider asks for checkov once, then stops; write requests get writerAnswer.
type fakeProvider struct{ decides int }

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Tools: true, StructuredOutput: true}
}

func (p *fakeProvider) Generate(_ context.Context, req types.Request) (types.Response, error) {
	if req.ResponseSchema != nil {
		return types.Response{Message: types.Message{Role: types.RoleAssistant, Content: writerAnswer}}, nil
	}
	p.decides++
	if p.decides == 1 {
		args, _ := json.Marshal(map[string]string{"file_path": "main.tf"})
		return types.Response{Message: types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
			{ID: "c1", Name: scanner.Checkov, Arguments: args},
		}}}, nil
	}
	return types.Response{Message: types.Message{Role: types.RoleAssistant, Content: "done"}}, nil
}

func testOptions() *Options {
	return &Options{
		newProvider: func(context.Context, *config.Config) (llm.Provider, error) { return &fakeProvider{}, nil },
		newRegistry: func(*config.Config) (*tools.Registry, error) {
			reg := tools.NewRegistry()
			checkov := scanner.NewCheckov(scanner.WithRunner(scanner.RunnerFunc(
				func(context.Context, string, ...string) (scanner.Output, error) {
					return scanner.Output{Stdout: []byte(checkovOutput), ExitCode: 1}, nil
				})))
			return reg, reg.Register(checkov.Tool())
		},
	}
}

// isolate points every path the CLI touches at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("IACSCAN_OUTPUT_DIR", filepath.Join(dir, "output"))
	t.Setenv("IACSCAN_STATE_BACKEND", "sqlite")
	t.Setenv("IACSCAN_STATE_SQLITE_PATH", filepath.Join(dir, "runs.db"))
	t.Setenv("IACSCAN_AGENT_PROMPTS_DIR", filepath.Join(dir, "prompts"))
	t.Setenv("IACSCAN_PLAIN", "true")
	return dir
}

func execute(t *testing.T, opts *Options, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(opts)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, &Options{}, "version")
	require.NoError(t, err)
	require.Equal(t, Version+"\n", out)
}

func TestToolsCommandListsScanners(t *testing.T) {
	out, err := execute(t, &Options{}, "tools")
	require.NoError(t, err)
	require.Contains(t, out, scanner.Checkov)
	require.Contains(t, out, scanner.Trivy)
	require.Contains(t, out, "@"+scanner.Bundle)
}

func TestScanRunsAndShow(t *testing.T) {
	dir := isolate(t)
	target := filepath.Join(dir, "main.tf")
	require.NoError(t, os.WriteFile(target, []byte("resource \"aws_s3_bucket\" \"public\" {\n  acl = \"public-read\"\n}\n"), 0o644))

	opts := testOptions()
	out, err := execute(t, opts, "scan", target, "--max-iterations", "4")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := lines[len(lines)-1]
	require.True(t, strings.HasPrefix(last, ReportPathMarker), "missing marker in %q", out)
	reportPath := strings.TrimPrefix(last, ReportPathMarker)
	require.FileExists(t, reportPath)
	require.Contains(t, out, `"high": 1`)

	out, err = execute(t, opts, "runs")
	require.NoError(t, err)
	require.Contains(t, out, "completed")
	require.Contains(t, out, "1 (1 high)")

	runID := strings.Fields(strings.Split(strings.TrimSpace(out), "\n")[1])[0]
	out, err = execute(t, opts, "show", runID, "--format", "yaml")
	require.NoError(t, err)
	require.Contains(t, out, "name: Public S3 Bucket")
	require.Contains(t, out, "high: 1")
}

func TestScanQuietPrintsOnlyMarker(t *testing.T) {
	dir := isolate(t)
	target := filepath.Join(dir, "main.tf")
	require.NoError(t, os.WriteFile(target, []byte("resource \"x\" \"y\" {}\n"), 0o644))

	out, err := execute(t, testOptions(), "scan", "-q", target)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, ReportPathMarker))
	require.Equal(t, 1, strings.Count(out, "\n"))
}

func TestShowRejectsUnknownFormat(t *testing.T) {
	isolate(t)
	_, err := execute(t, testOptions(), "show", "abc", "--format", "xml")
	require.ErrorContains(t, err, "unsupported format")
}

func TestRunsWithoutIndex(t *testing.T) {
	isolate(t)
	t.Setenv("IACSCAN_STATE_BACKEND", "none")
	_, err := execute(t, testOptions(), "runs")
	require.ErrorIs(t, err, errNoStore)
}

func TestEnvFileLoadedBeforeConfig(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("IACSCAN_LOGGING_FORMAT=yaml\n"), 0o644))
	t.Setenv("IACSCAN_LOGGING_FORMAT", "")
	os.Unsetenv("IACSCAN_LOGGING_FORMAT")

	_, err := execute(t, testOptions(), "--env-file", envFile, "runs")
	require.ErrorContains(t, err, "logging.format")
}

func TestSystemPromptResolution(t *testing.T) {
	require.Equal(t, "", systemPrompt("  "))
	require.Equal(t, "Only run checkov.", systemPrompt("Only run checkov."))
}
