package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	out, err := Render("scan {{ path }} now: {{content}}", map[string]string{
		"path":    "main.tf",
		"content": `resource "x" { acl = "{{path}}" }`,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if out != `scan main.tf now: resource "x" { acl = "{{path}}" }` {
		t.Fatalf("unexpected render %q", out)
	}

	_, err = Render("{{a}} {{b}} {{a}}", map[string]string{})
	if !errors.Is(err, ErrMissingVariable) || !strings.Contains(err.Error(), "a, b") {
		t.Fatalf("expected missing variables a, b, got %v", err)
	}
}

func TestBuiltinsRegistered(t *testing.T) {
	for _, name := range []string{ScannerAgent, ScanTask, ReportWriter, ReportInput} {
		if Text(name) == "" {
			t.Fatalf("builtin %q not registered", name)
		}
	}
	out, err := RenderNamed(ScanTask, map[string]string{"path": "a.tf", "content": "x"})
	if err != nil || !strings.Contains(out, "a.tf") {
		t.Fatalf("scan task render: %q %v", out, err)
	}
}

func TestRegistryVersions(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Spec{Name: "Writer", Text: "one"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Spec{Name: "writer", Version: "v2", Text: "two"}); err != nil {
		t.Fatalf("register v2: %v", err)
	}
	if s, ok := r.Resolve("writer"); !ok || s.Text != "two" {
		t.Fatalf("expected latest version, got %#v", s)
	}
	if s, ok := r.Resolve("writer@v1"); !ok || s.Text != "one" {
		t.Fatalf("expected pinned version, got %#v", s)
	}
	if err := r.Register(Spec{Name: "bad name", Text: "x"}); err == nil {
		t.Fatalf("expected invalid name error")
	}
	if err := r.Register(Spec{Name: "empty"}); err == nil {
		t.Fatalf("expected empty text error")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"custom-agent.yaml": "text: |\n  Only run checkov.\n",
		"other.json":        `{"name": "custom-json", "text": "hello"}`,
		"notes.txt":         "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	n, err := LoadDir(dir)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 loaded prompts, got %d %v", n, err)
	}
	if Text("custom-agent") != "Only run checkov." || Text("custom-json") != "hello" {
		t.Fatalf("loaded prompts not registered")
	}
	if n, err := LoadDir(filepath.Join(dir, "missing")); err != nil || n != 0 {
		t.Fatalf("missing dir should be ignored: %d %v", n, err)
	}
}

func TestLoadDir_BadFileDoesNotBlockOthers(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a-broken.yaml"), []byte("text: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b-good.yml"), []byte("text: fine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry()
	n, err := r.LoadDir(dir)
	if err == nil || n != 1 {
		t.Fatalf("expected one loaded prompt and an error, got %d %v", n, err)
	}
	if spec, ok := r.Resolve("b-good"); !ok || spec.Text != "fine" {
		t.Fatalf("good prompt not registered: %#v", spec)
	}
}

func TestRegistryOrdersVersionsBySemver(t *testing.T) {
	r := NewRegistry()
	for _, v := range []string{"v10", "v2", "v9.1"} {
		if err := r.Register(Spec{Name: "think", Version: v, Text: v}); err != nil {
			t.Fatalf("register %s: %v", v, err)
		}
	}
	if s, _ := r.Resolve("think"); s.Version != "v10" {
		t.Fatalf("expected v10 to be newest, got %q", s.Version)
	}
	if err := r.Register(Spec{Name: "think", Version: "v2", Text: "replaced"}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if s, _ := r.Resolve("think@v2"); s.Text != "replaced" {
		t.Fatalf("re-registration should replace, got %q", s.Text)
	}
	if got := r.Names(); len(got) != 1 || got[0] != "think" {
		t.Fatalf("unexpected names %v", got)
	}
}
