package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/AnkitD0811/cloud-security-scanner/types"
)

func TestToGeminiContents_FoldsSystemAndPairsToolResults(t *testing.T) {
	system, contents := toGeminiContents("base", []types.Message{
		{Role: types.RoleSystem, Content: "extra"},
		{Role: types.RoleUser, Content: "scan main.tf"},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "c1", Name: "checkov", Arguments: json.RawMessage(`{"file_path":"main.tf"}`)}}},
		{Role: types.RoleTool, Name: "checkov", ToolCallID: "c1", Content: `{"failed":1}`},
		{Role: types.RoleTool, Name: "tfsec", ToolCallID: "c2", Content: "not json"},
	})
	if system != "base\n\nextra" {
		t.Fatalf("unexpected system instruction %q", system)
	}
	if len(contents) != 4 {
		t.Fatalf("expected 4 contents, got %d", len(contents))
	}
	call := contents[1].Parts[0].FunctionCall
	if contents[1].Role != string(genai.RoleModel) || call == nil || call.ID != "c1" || call.Args["file_path"] != "main.tf" {
		t.Fatalf("unexpected function call content: %#v", contents[1])
	}
	resp := contents[2].Parts[0].FunctionResponse
	if resp == nil || resp.ID != "c1" || resp.Response["failed"] != float64(1) {
		t.Fatalf("unexpected function response: %#v", resp)
	}
	if contents[3].Parts[0].FunctionResponse.Response["output"] != "not json" {
		t.Fatalf("non-JSON tool output should be wrapped: %#v", contents[3].Parts[0].FunctionResponse)
	}
}

func TestBuildConfig_SchemaOnlyWithoutTools(t *testing.T) {
	schema := map[string]any{"type": "object"}

	write := buildConfig("writer", types.Request{ResponseSchema: schema, MaxOutputTokens: 512})
	if write.ResponseMIMEType != "application/json" || write.ResponseJsonSchema == nil {
		t.Fatalf("write config should request JSON: %#v", write)
	}
	if write.MaxOutputTokens != 512 || write.SystemInstruction == nil {
		t.Fatalf("unexpected write config: %#v", write)
	}

	decide := buildConfig("", types.Request{
		Tools:          []types.ToolDefinition{{Name: "checkov"}},
		ResponseSchema: schema,
	})
	if decide.ResponseMIMEType != "" || len(decide.Tools) != 1 {
		t.Fatalf("tool requests must not set JSON mode: %#v", decide)
	}
	params, ok := decide.Tools[0].FunctionDeclarations[0].ParametersJsonSchema.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Fatalf("missing schema should default to an empty object: %#v", decide.Tools[0].FunctionDeclarations[0])
	}
}

func TestParseGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking", Thought: true},
			{Text: " running checkov "},
			{FunctionCall: &genai.FunctionCall{ID: "x", Name: "checkov"}},
		}}}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 4, CandidatesTokenCount: 2, TotalTokenCount: 6},
	}
	out := parseGeminiResponse(resp)
	if out.Message.Content != "running checkov" || out.Message.Reasoning != "thinking" {
		t.Fatalf("unexpected message: %#v", out.Message)
	}
	if len(out.Message.ToolCalls) != 1 || string(out.Message.ToolCalls[0].Arguments) != "{}" {
		t.Fatalf("unexpected tool calls: %#v", out.Message.ToolCalls)
	}
	if out.Usage == nil || out.Usage.TotalTokens != 6 {
		t.Fatalf("unexpected usage: %#v", out.Usage)
	}

	empty := parseGeminiResponse(&genai.GenerateContentResponse{})
	if empty.Message.Content != "" || len(empty.Message.ToolCalls) != 0 {
		t.Fatalf("empty response should be an empty answer: %#v", empty)
	}
}

func TestClientGenerate_RoundTrip(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [
				{"functionCall": {"name": "checkov", "args": {"file_path": "main.tf"}}}
			]}}],
			"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 2, "totalTokenCount": 5}
		}`))
	}))
	defer ts.Close()

	c, err := New(context.Background(), "test-key", WithModel("gemini-test"), WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := c.Generate(context.Background(), types.Request{
		SystemPrompt: "system",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "scan"}},
		Tools:        []types.ToolDefinition{{Name: "checkov", Description: "run checkov"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Name != "checkov" {
		t.Fatalf("unexpected response: %#v", resp.Message)
	}
	if !strings.Contains(string(resp.Message.ToolCalls[0].Arguments), "main.tf") {
		t.Fatalf("arguments lost: %s", resp.Message.ToolCalls[0].Arguments)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatalf("system instruction not sent: %#v", body)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(context.Background(), " "); err == nil {
		t.Fatalf("expected missing key error")
	}
}
