// Package factory builds the oracle provider selected by configuration.
package factory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AnkitD0811/cloud-security-scanner/llm"
	geminiprov "github.com/AnkitD0811/cloud-security-scanner/providers/gemini"
	openaiprov "github.com/AnkitD0811/cloud-security-scanner/providers/openai"
)

// Config selects a provider. Empty keys fall back to the provider's usual
// environment variable.
type Config struct {
	Name    string
	Model   string
	APIKey  string
	BaseURL string
}

// Names lists the supported provider names.
func Names() []string { return []string{"gemini", "openai", "ollama"} }

func New(ctx context.Context, cfg Config) (llm.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = "gemini"
	}
	switch name {
	case "gemini":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when provider=gemini")
		}
		opts := []geminiprov.Option{geminiprov.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, geminiprov.WithBaseURL(cfg.BaseURL))
		}
		return geminiprov.New(ctx, key, opts...)

	case "openai":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		baseURL := firstNonEmpty(cfg.BaseURL, os.Getenv("OPENAI_BASE_URL"))
		if key == "" && baseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when provider=openai")
		}
		opts := []openaiprov.Option{openaiprov.WithModel(cfg.Model)}
		if baseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(baseURL))
		}
		return openaiprov.New(key, opts...)

	case "ollama":
		opts := []openaiprov.Option{openaiprov.WithModel(cfg.Model)}
		if baseURL := firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_BASE_URL")); baseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(baseURL))
		}
		return openaiprov.NewOllama(opts...)
	}

	return nil, fmt.Errorf("unsupported provider %q (use %s)", name, strings.Join(Names(), ", "))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
