// Package agent runs the scan loop: read the artifact, let the oracle pick
// scanners until it is done, then have it write the report.
package agent

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnkitD0811/cloud-security-scanner/guard"
	"github.com/AnkitD0811/cloud-security-scanner/observe"
	"github.com/AnkitD0811/cloud-security-scanner/oracle"
	"github.com/AnkitD0811/cloud-security-scanner/prompt"
	"github.com/AnkitD0811/cloud-security-scanner/report"
	"github.com/AnkitD0811/cloud-security-scanner/sink"
	"github.com/AnkitD0811/cloud-security-scanner/state"
	"github.com/AnkitD0811/cloud-security-scanner/tools"
	"github.com/AnkitD0811/cloud-security-scanner/types"
)

const (
	DefaultMaxIterations = 12
	MaxIterationsLimit   = 64
	DefaultOutputRoot    = "output"
)

type Agent struct {
	oracle        *oracle.Adapter
	registry      *tools.Registry
	systemPrompt  string
	writerPrompt  string
	maxIterations int
	parallelTools bool
	runTimeout    time.Duration
	outputRoot    string
	logger        *zap.Logger
	observer      observe.Sink
	store         state.Store
	sink          sink.Sink
	redactor      *guard.Redactor
	middlewares   []Middleware
	now           func() time.Time
	newRunID      func() string
}

type Option func(*Agent)

func WithSystemPrompt(text string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(text) != "" {
			a.systemPrompt = text
		}
	}
}

func WithWriterPrompt(text string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(text) != "" {
			a.writerPrompt = text
		}
	}
}

// WithMaxIterations caps THINK->ACT cycles. Values are clamped to 1..64.
func WithMaxIterations(n int) Option {
	return func(a *Agent) { a.maxIterations = clampIterations(n) }
}

func WithParallelTools(enabled bool) Option {
	return func(a *Agent) { a.parallelTools = enabled }
}

// WithRunTimeout bounds the THINK/ACT phase. Zero disables it.
func WithRunTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d >= 0 {
			a.runTimeout = d
		}
	}
}

// WithOutputRoot sets where per-run artifacts and, unless WithSink is given,
// reports are written.
func WithOutputRoot(dir string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(dir) != "" {
			a.outputRoot = dir
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithObserver(observer observe.Sink) Option {
	return func(a *Agent) { a.observer = observer }
}

func WithStore(store state.Store) Option {
	return func(a *Agent) { a.store = store }
}

func WithSink(s sink.Sink) Option {
	return func(a *Agent) {
		if s != nil {
			a.sink = s
		}
	}
}

// WithRedactor scrubs secrets from the artifact before the oracle sees it.
func WithRedactor(r *guard.Redactor) Option {
	return func(a *Agent) { a.redactor = r }
}

func WithMiddleware(middlewares ...Middleware) Option {
	return func(a *Agent) {
		for _, mw := range middlewares {
			if mw != nil {
				a.middlewares = append(a.middlewares, mw)
			}
		}
	}
}

// WithClock replaces time.Now, mostly for report names in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func WithRunIDGenerator(fn func() string) Option {
	return func(a *Agent) {
		if fn != nil {
			a.newRunID = fn
		}
	}
}

func New(adapter *oracle.Adapter, registry *tools.Registry, opts ...Option) (*Agent, error) {
	if adapter == nil {
		return nil, errors.New("oracle adapter is required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	a := &Agent{
		oracle:        adapter,
		registry:      registry,
		systemPrompt:  prompt.Text(prompt.ScannerAgent),
		writerPrompt:  prompt.Text(prompt.ReportWriter),
		maxIterations: DefaultMaxIterations,
		parallelTools: true,
		outputRoot:    DefaultOutputRoot,
		logger:        zap.NewNop(),
		now:           time.Now,
		newRunID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sink == nil {
		a.sink = sink.NewFS(a.outputRoot)
	}
	return a, nil
}

func (a *Agent) MaxIterations() int { return a.maxIterations }

func (a *Agent) artifactDir(name string) string {
	return filepath.Join(a.outputRoot, name)
}

func clampIterations(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxIterations
	case n > MaxIterationsLimit:
		return MaxIterationsLimit
	}
	return n
}

// Result describes one finished run.
type Result struct {
	RunID         string             `json:"runId"`
	Report        report.Report      `json:"report"`
	ReportPath    string             `json:"reportPath,omitempty"`
	Iterations    int                `json:"iterations"`
	BoundExceeded bool               `json:"boundExceeded,omitempty"`
	Observations  []types.ToolResult `json:"observations,omitempty"`
	Messages      []types.Message    `json:"messages,omitempty"`
	Trace         []State            `json:"trace"`
	Degraded      []string           `json:"degraded,omitempty"`
	Usage         *types.Usage       `json:"usage,omitempty"`
	StartedAt     time.Time          `json:"startedAt"`
	CompletedAt   time.Time          `json:"completedAt"`
}
