// Package openai talks to any OpenAI-compatible chat completions endpoint,
// which covers OpenAI itself and a local Ollama server.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/AnkitD0811/cloud-security-scanner/llm"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultOllamaModel = "llama3.1:8b"
	DefaultOllamaURL   = "http://127.0.0.1:11434/v1"
)

type Client struct {
	client     *goopenai.Client
	name       string
	model      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.model = strings.TrimSpace(model)
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithName changes the name reported in run records and events.
func WithName(name string) Option {
	return func(c *Client) {
		if strings.TrimSpace(name) != "" {
			c.name = strings.TrimSpace(name)
		}
	}
}

func New(apiKey string, opts ...Option) (*Client, error) {
	c := &Client{name: "openai", model: DefaultModel}
	for _, opt := range opts {
		opt(c)
	}
	if strings.TrimSpace(apiKey) == "" && c.baseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required unless a base URL is set")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	c.client = goopenai.NewClientWithConfig(cfg)
	return c, nil
}

// NewOllama targets a local Ollama server through its OpenAI-compatible API.
func NewOllama(opts ...Option) (*Client, error) {
	base := []Option{WithName("ollama"), WithModel(DefaultOllamaModel), WithBaseURL(DefaultOllamaURL)}
	return New("ollama", append(base, opts...)...)
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() string { return c.model }

func (c *Client) Capabilities() llm.Capabilities {
	return llm.Capabilities{Tools: true, StructuredOutput: true}
}

func (c *Client) Generate(ctx context.Context, req types.Request) (types.Response, error) {
	chatReq, err := c.buildRequest(req)
	if err != nil {
		return types.Response{}, err
	}
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return types.Response{}, fmt.Errorf("%s API error (%d): %s", c.name, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return types.Response{}, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return types.Response{}, fmt.Errorf("%s response had no choices", c.name)
	}
	return types.Response{Message: fromChatMessage(resp.Choices[0].Message), Usage: usageOf(resp.Usage)}, nil
}

func (c *Client) buildRequest(req types.Request) (goopenai.ChatCompletionRequest, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	out := goopenai.ChatCompletionRequest{
		Model:     model,
		Messages:  toChatMessages(req.SystemPrompt, req.Messages),
		MaxTokens: req.MaxOutputTokens,
	}
	if len(req.Tools) > 0 {
		out.Tools = toChatTools(req.Tools)
		out.ToolChoice = "auto"
	}
	if len(req.ResponseSchema) > 0 && len(req.Tools) == 0 {
		raw, err := json.Marshal(req.ResponseSchema)
		if err != nil {
			return out, fmt.Errorf("encode response schema: %w", err)
		}
		out.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   "security_report",
				Schema: json.RawMessage(raw),
			},
		}
	}
	return out, nil
}

func toChatMessages(system string, in []types.Message) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(in)+1)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range in {
		switch m.Role {
		case types.RoleSystem:
			msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: m.Content})
		case types.RoleUser:
			msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: m.Content})
		case types.RoleAssistant:
			out := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				args := "{}"
				if len(tc.Arguments) > 0 {
					args = string(tc.Arguments)
				}
				out.ToolCalls = append(out.ToolCalls, goopenai.ToolCall{
					ID:       tc.ID,
					Type:     goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{Name: tc.Name, Arguments: args},
				})
			}
			msgs = append(msgs, out)
		case types.RoleTool:
			msgs = append(msgs, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Name:       m.Name,
				ToolCallID: m.ToolCallID,
				Content:    m.Content,
			})
		}
	}
	return msgs
}

func toChatTools(in []types.ToolDefinition) []goopenai.Tool {
	tools := make([]goopenai.Tool, 0, len(in))
	for _, t := range in {
		params := t.JSONSchema
		if len(params) == 0 {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func fromChatMessage(msg goopenai.ChatCompletionMessage) types.Message {
	reasoning, content := splitThinking(msg.Content)
	out := types.Message{Role: types.RoleAssistant, Content: content, Reasoning: reasoning}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: normalizeJSONArgs(tc.Function.Arguments),
		})
	}
	return out
}

// splitThinking separates the <think>...</think> preamble that reasoning models
// served through Ollama put in front of the answer.
func splitThinking(content string) (reasoning, answer string) {
	content = strings.TrimSpace(content)
	rest, ok := strings.CutPrefix(content, "<think>")
	if !ok {
		return "", content
	}
	thought, after, closed := strings.Cut(rest, "</think>")
	if !closed {
		return strings.TrimSpace(rest), ""
	}
	return strings.TrimSpace(thought), strings.TrimSpace(after)
}

// normalizeJSONArgs keeps invalid argument strings visible to the oracle
// adapter, which rejects them as malformed.
func normalizeJSONArgs(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}

func usageOf(u goopenai.Usage) *types.Usage {
	if u.TotalTokens == 0 {
		return nil
	}
	return &types.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}
