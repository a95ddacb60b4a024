// Package config loads iacscan settings from defaults, an optional file and
// IACSCAN_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "IACSCAN"

type Config struct {
	Provider  ProviderConfig  `mapstructure:"provider"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Scanners  ScannersConfig  `mapstructure:"scanners"`
	Output    OutputConfig    `mapstructure:"output"`
	State     StateConfig     `mapstructure:"state"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ProviderConfig selects the remote model behind the decision oracle.
type ProviderConfig struct {
	Name    string        `mapstructure:"name"` // gemini, openai, ollama
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"` // per oracle call
}

type AgentConfig struct {
	MaxIterations int           `mapstructure:"max_iterations"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`
	ParallelTools bool          `mapstructure:"parallel_tools"`
	RedactSecrets bool          `mapstructure:"redact_secrets"`
	SystemPrompt  string        `mapstructure:"system_prompt"`
	PromptsDir    string        `mapstructure:"prompts_dir"`
}

type ScannersConfig struct {
	Enabled     []string `mapstructure:"enabled"` // tool names or @bundles
	CheckovPath string   `mapstructure:"checkov_path"`
	TfsecPath   string   `mapstructure:"tfsec_path"`
	TrivyPath   string   `mapstructure:"trivy_path"`
}

type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
}

type StateConfig struct {
	Backend       string        `mapstructure:"backend"` // sqlite, redis, hybrid, memory, none
	SQLitePath    string        `mapstructure:"sqlite_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisTTL      time.Duration `mapstructure:"redis_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	MetricsFile  string `mapstructure:"metrics_file"`
	ServiceName  string `mapstructure:"service_name"`
}

// Load reads configuration from path, or from an optional iacscan.yaml in the
// working directory when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("iacscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyEnvFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "gemini")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.timeout", 60*time.Second)

	v.SetDefault("agent.max_iterations", 12)
	v.SetDefault("agent.run_timeout", 10*time.Minute)
	v.SetDefault("agent.tool_timeout", 5*time.Minute)
	v.SetDefault("agent.parallel_tools", true)
	v.SetDefault("agent.redact_secrets", true)
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.prompts_dir", "./.iacscan/prompts")

	v.SetDefault("scanners.enabled", []string{"@scanners"})
	v.SetDefault("scanners.checkov_path", "")
	v.SetDefault("scanners.tfsec_path", "")
	v.SetDefault("scanners.trivy_path", "")

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.s3_bucket", "")
	v.SetDefault("output.s3_prefix", "")
	v.SetDefault("output.s3_region", "")
	v.SetDefault("output.s3_endpoint", "")

	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.sqlite_path", "./.iacscan/runs.db")
	v.SetDefault("state.redis_addr", "127.0.0.1:6379")
	v.SetDefault("state.redis_password", "")
	v.SetDefault("state.redis_db", 0)
	v.SetDefault("state.redis_ttl", 7*24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.metrics_file", "")
	v.SetDefault("telemetry.service_name", "iacscan")
}

// applyEnvFallbacks honours the provider's conventional key variable and a
// comma-separated scanner list from the environment.
func (c *Config) applyEnvFallbacks() {
	if strings.TrimSpace(c.Provider.APIKey) == "" && strings.EqualFold(c.Provider.Name, "gemini") {
		c.Provider.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if len(c.Scanners.Enabled) == 1 && strings.Contains(c.Scanners.Enabled[0], ",") {
		c.Scanners.Enabled = SplitCSV(c.Scanners.Enabled[0])
	}
	c.Provider.Name = strings.ToLower(strings.TrimSpace(c.Provider.Name))
	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("provider.name %q is not supported", c.Provider.Name)
	}
	if c.Provider.Timeout <= 0 {
		return errors.New("provider.timeout must be positive")
	}
	if c.Agent.MaxIterations < 1 {
		return errors.New("agent.max_iterations must be at least 1")
	}
	if c.Agent.RunTimeout < 0 || c.Agent.ToolTimeout < 0 {
		return errors.New("agent timeouts must not be negative")
	}
	if len(c.Scanners.Enabled) == 0 {
		return errors.New("scanners.enabled must name at least one scanner")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir is required")
	}
	switch c.State.Backend {
	case "sqlite", "redis", "hybrid", "memory", "none":
	default:
		return fmt.Errorf("state.backend %q is not supported", c.State.Backend)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	return nil
}

// SplitCSV splits a comma-separated list, dropping blanks.
func SplitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
