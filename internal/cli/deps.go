package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AnkitD0811/cloud-security-scanner/agent"
	"github.com/AnkitD0811/cloud-security-scanner/guard"
	"github.com/AnkitD0811/cloud-security-scanner/internal/config"
	"github.com/AnkitD0811/cloud-security-scanner/internal/logging"
	"github.com/AnkitD0811/cloud-security-scanner/llm"
	"github.com/AnkitD0811/cloud-security-scanner/observe"
	"github.com/AnkitD0811/cloud-security-scanner/observe/metrics"
	observeotel "github.com/AnkitD0811/cloud-security-scanner/observe/otel"
	"github.com/AnkitD0811/cloud-security-scanner/oracle"
	"github.com/AnkitD0811/cloud-security-scanner/prompt"
	providerfactory "github.com/AnkitD0811/cloud-security-scanner/providers/factory"
	"github.com/AnkitD0811/cloud-security-scanner/scanner"
	"github.com/AnkitD0811/cloud-security-scanner/sink"
	"github.com/AnkitD0811/cloud-security-scanner/state"
	statefactory "github.com/AnkitD0811/cloud-security-scanner/state/factory"
	"github.com/AnkitD0811/cloud-security-scanner/tools"
)

// deps holds everything one command needs. close releases it in reverse
// order of construction.
type deps struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   state.Store
	metrics *metrics.Metrics
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	if d.metrics != nil {
		if err := d.metrics.WriteTextfile(d.cfg.Telemetry.MetricsFile); err != nil {
			d.logger.Warn("metrics export failed", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

func buildDeps(ctx context.Context, opts *Options) (*deps, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, logger: logger}

	if n, err := prompt.LoadDir(cfg.Agent.PromptsDir); err != nil {
		logger.Warn("prompt specs unavailable", zap.String("dir", cfg.Agent.PromptsDir), zap.Error(err))
	} else if n > 0 {
		logger.Debug("prompt specs loaded", zap.Int("count", n))
	}
	scanner.SetBinary(scanner.Checkov, cfg.Scanners.CheckovPath)
	scanner.SetBinary(scanner.Tfsec, cfg.Scanners.TfsecPath)
	scanner.SetBinary(scanner.Trivy, cfg.Scanners.TrivyPath)

	store, err := statefactory.New(ctx, statefactory.Config{
		Backend:       cfg.State.Backend,
		SQLitePath:    cfg.State.SQLitePath,
		RedisAddr:     cfg.State.RedisAddr,
		RedisPassword: cfg.State.RedisPassword,
		RedisDB:       cfg.State.RedisDB,
		RedisTTL:      cfg.State.RedisTTL,
	}, logger)
	if err != nil {
		logger.Warn("state store unavailable, runs will not be indexed", zap.String("backend", cfg.State.Backend), zap.Error(err))
	}
	if store != nil {
		d.store = store
		d.closers = append(d.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("state store close failed", zap.Error(err))
			}
		})
	}
	return d, nil
}

func (d *deps) provider(ctx context.Context, opts *Options) (llm.Provider, error) {
	if opts.newProvider != nil {
		return opts.newProvider(ctx, d.cfg)
	}
	return providerfactory.New(ctx, providerfactory.Config{
		Name:    d.cfg.Provider.Name,
		Model:   d.cfg.Provider.Model,
		APIKey:  d.cfg.Provider.APIKey,
		BaseURL: d.cfg.Provider.BaseURL,
	})
}

func (d *deps) registry(opts *Options, selection []string) (*tools.Registry, error) {
	if opts.newRegistry != nil {
		return opts.newRegistry(d.cfg)
	}
	if len(selection) == 0 {
		selection = d.cfg.Scanners.Enabled
	}
	reg, err := tools.NewRegistryFromSelection(selection, tools.WithInvokeTimeout(d.cfg.Agent.ToolTimeout))
	if err != nil {
		return nil, fmt.Errorf("resolve tools: %w", err)
	}
	return reg, nil
}

// sink persists to the output directory and, when a bucket is configured,
// mirrors to S3. An unusable mirror is skipped with a warning.
func (d *deps) sink(ctx context.Context, outputDir string) sink.Sink {
	primary := sink.NewFS(outputDir)
	if strings.TrimSpace(d.cfg.Output.S3Bucket) == "" {
		return primary
	}
	mirror, err := sink.NewS3FromConfig(ctx, sink.S3Config{
		Bucket:   d.cfg.Output.S3Bucket,
		Prefix:   d.cfg.Output.S3Prefix,
		Region:   d.cfg.Output.S3Region,
		Endpoint: d.cfg.Output.S3Endpoint,
	})
	if err != nil {
		d.logger.Warn("s3 mirror disabled", zap.String("bucket", d.cfg.Output.S3Bucket), zap.Error(err))
		return primary
	}
	return sink.NewMulti(primary, mirror)
}

// observer fans events out to the log, Prometheus metrics and, when an OTLP
// endpoint is configured, tracing.
func (d *deps) observer(ctx context.Context) observe.Sink {
	sinks := []observe.Sink{observe.NewLogSink(d.logger)}

	d.metrics = metrics.New()
	sinks = append(sinks, d.metrics)

	if endpoint := strings.TrimSpace(d.cfg.Telemetry.OTLPEndpoint); endpoint != "" {
		tp, shutdown, err := observeotel.Setup(ctx, observeotel.SetupOptions{
			Endpoint:       endpoint,
			ServiceName:    d.cfg.Telemetry.ServiceName,
			ServiceVersion: Version,
			Insecure:       d.cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			d.logger.Warn("tracing disabled", zap.String("endpoint", endpoint), zap.Error(err))
		} else {
			sinks = append(sinks, observeotel.NewSink(tp))
			d.closers = append(d.closers, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					d.logger.Warn("trace flush failed", zap.Error(err))
				}
			})
		}
	}

	async := observe.NewAsyncSink(observe.NewMultiSink(sinks...), 256)
	d.closers = append(d.closers, func() {
		async.Close()
		if n := async.Dropped(); n > 0 {
			d.logger.Warn("observer dropped events", zap.Int64("count", n))
		}
	})
	return async
}

type scanOptions struct {
	outputDir     string
	maxIterations int
	timeout       time.Duration
	tools         []string
}

func (d *deps) buildAgent(ctx context.Context, opts *Options, so scanOptions) (*agent.Agent, error) {
	provider, err := d.provider(ctx, opts)
	if err != nil {
		return nil, err
	}
	adapter, err := oracle.New(provider,
		oracle.WithTimeout(d.cfg.Provider.Timeout),
		oracle.WithModel(d.cfg.Provider.Model),
	)
	if err != nil {
		return nil, err
	}
	reg, err := d.registry(opts, so.tools)
	if err != nil {
		return nil, err
	}

	outputDir := firstNonEmpty(so.outputDir, d.cfg.Output.Dir)
	maxIterations := d.cfg.Agent.MaxIterations
	if so.maxIterations > 0 {
		maxIterations = so.maxIterations
	}
	runTimeout := d.cfg.Agent.RunTimeout
	if so.timeout > 0 {
		runTimeout = so.timeout
	}

	agentOpts := []agent.Option{
		agent.WithMaxIterations(maxIterations),
		agent.WithRunTimeout(runTimeout),
		agent.WithParallelTools(d.cfg.Agent.ParallelTools),
		agent.WithOutputRoot(outputDir),
		agent.WithSink(d.sink(ctx, outputDir)),
		agent.WithLogger(d.logger),
		agent.WithObserver(d.observer(ctx)),
		agent.WithStore(d.store),
	}
	if system := systemPrompt(d.cfg.Agent.SystemPrompt); system != "" {
		agentOpts = append(agentOpts, agent.WithSystemPrompt(system))
	}
	if d.cfg.Agent.RedactSecrets {
		redactor := guard.New()
		agentOpts = append(agentOpts,
			agent.WithRedactor(redactor),
			agent.WithMiddleware(agent.RedactToolOutput(redactor)),
		)
	}
	return agent.New(adapter, reg, agentOpts...)
}

// systemPrompt treats the configured value as a prompt reference first and
// falls back to literal text.
func systemPrompt(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if text := prompt.Text(value); text != "" {
		return text
	}
	return value
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
