package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semplan/config"
	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/workflow"
)

// Orchestrator runs the stages in order over a fresh RunState.
type Orchestrator struct {
	runner     *Runner
	stages     []Stage
	policy     string
	extraction llm.ExtractMode
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records stage and run metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStageTimeout bounds each generation call.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.runner.timeout = d }
}

// WithFailurePolicy selects config.FailOpen or config.FailFast.
func WithFailurePolicy(policy string) Option {
	return func(o *Orchestrator) { o.policy = policy }
}

// WithExtraction selects how JSON is located in generation output.
func WithExtraction(mode llm.ExtractMode) Option {
	return func(o *Orchestrator) { o.extraction = mode }
}

// WithTemperature overrides the sampling temperature (default 0).
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) { o.runner.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) { o.runner.maxTokens = n }
}

// WithJSONMode asks backends that support it for JSON-only output.
func WithJSONMode(on bool) Option {
	return func(o *Orchestrator) { o.runner.jsonMode = on }
}

// WithClock replaces time.Now for the scheduling reference date.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithStages replaces the default stage list.
func WithStages(stages []Stage) Option {
	return func(o *Orchestrator) { o.stages = stages }
}

// NewOrchestrator creates an Orchestrator calling gen. The stage list is
// validated up front.
func NewOrchestrator(gen llm.Generator, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		runner:     NewRunner(gen, nil, nil),
		stages:     DefaultStages(),
		policy:     config.FailOpen,
		extraction: llm.ExtractBalanced,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.runner.logger = o.logger
	o.runner.metrics = o.metrics

	if o.policy != config.FailOpen && o.policy != config.FailFast {
		return nil, fmt.Errorf("unknown failure policy %q", o.policy)
	}
	if err := ValidateStages(o.stages); err != nil {
		return nil, fmt.Errorf("invalid stage list: %w", err)
	}
	return o, nil
}

// NewFromConfig creates an Orchestrator from the pipeline and model sections
// of cfg.
func NewFromConfig(gen llm.Generator, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	mode, err := llm.ParseExtractMode(cfg.Pipeline.Extraction)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithExtraction(mode),
		WithStageTimeout(cfg.Pipeline.StageTimeout),
		WithFailurePolicy(cfg.Pipeline.FailurePolicy),
		WithTemperature(cfg.Model.Temperature),
		WithMaxTokens(cfg.Model.MaxTokens),
		WithJSONMode(cfg.Pipeline.JSONMode),
	}
	return NewOrchestrator(gen, append(base, opts...)...)
}

type todayKey struct{}

// WithToday returns a context that makes Run schedule relative to today
// instead of the orchestrator clock.
func WithToday(ctx context.Context, today time.Time) context.Context {
	return context.WithValue(ctx, todayKey{}, today)
}

// TodayFromContext returns the reference date set by WithToday.
func TodayFromContext(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(todayKey{}).(time.Time)
	return t, ok && !t.IsZero()
}

// ParseToday parses a YYYY-MM-DD reference date in loc.
func ParseToday(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// NewRunContext returns ctx carrying a fresh trace id, and that id. Run uses
// it to tag logs and generation call records, so a caller can store the result
// under the same id.
func NewRunContext(ctx context.Context) (context.Context, string) {
	tc := llm.GetTraceContext(ctx)
	tc.TraceID = uuid.New().String()
	return llm.WithTraceContext(ctx, tc), tc.TraceID
}

// Run executes every stage for task and returns the final state. It never
// fails: stage failures are recorded on the state. The trace id of ctx, if
// any, identifies the run in logs and call records; otherwise one is minted.
func (o *Orchestrator) Run(ctx context.Context, task string) *workflow.RunState {
	tc := llm.GetTraceContext(ctx)
	if tc.TraceID == "" {
		tc.TraceID = uuid.New().String()
		ctx = llm.WithTraceContext(ctx, tc)
	}
	logger := o.logger.With(slog.String("run_id", tc.TraceID))
	start := time.Now()

	st := workflow.NewRunState(task)
	env := Env{Extraction: o.extraction, Today: o.now()}
	if today, ok := TodayFromContext(ctx); ok {
		env.Today = today
	}

	logger.Info("Pipeline started", slog.String("stages", stageNames(o.stages)), slog.String("policy", o.policy))

	var failed workflow.Stage
	for _, s := range o.stages {
		if failed != "" {
			st.Skip(s.Name, fmt.Sprintf("skipped after %s failed", failed))
			continue
		}

		p := o.runner.Run(ctx, s, st, env)
		st.Merge(s.Name, s.Writes, p)

		if p.Err != nil && o.policy == config.FailFast {
			failed = s.Name
		}
	}

	o.metrics.observeRun(st)
	logger.Info("Pipeline finished",
		slog.Bool("degraded", st.Degraded()),
		slog.Int("errors", len(st.Errors)),
		slog.Int("issues", len(st.Issues)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return st
}
