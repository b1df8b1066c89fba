package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/model"
	"github.com/c360studio/semplan/workflow"
)

// Runner executes a single stage. It never returns an error: every failure,
// including a panic, becomes a Patch with Err set.
type Runner struct {
	gen         llm.Generator
	logger      *slog.Logger
	metrics     *Metrics
	timeout     time.Duration
	temperature float64
	maxTokens   int
	jsonMode    bool
}

// NewRunner creates a Runner that calls gen. temperature is pinned per call;
// a zero timeout leaves the caller's deadline in charge.
func NewRunner(gen llm.Generator, logger *slog.Logger, metrics *Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{gen: gen, logger: logger, metrics: metrics}
}

// Run builds the stage's messages, calls the generator once and decodes the
// reply into a patch.
func (r *Runner) Run(ctx context.Context, s Stage, st *workflow.RunState, env Env) (patch workflow.Patch) {
	start := time.Now()
	logger := r.logger.With(slog.String("stage", string(s.Name)))

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Stage panicked", slog.Any("panic", rec))
			patch = workflow.Patch{Err: workflow.NewStageError(s.Name, fmt.Errorf("panic: %v", rec))}
		}
		r.metrics.observeStage(s.Name, patch, time.Since(start))
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tc := llm.GetTraceContext(ctx)
	tc.Stage = string(s.Name)
	ctx = llm.WithTraceContext(ctx, tc)

	temperature := r.temperature
	req := llm.Request{
		Capability: model.CapabilityForStage(string(s.Name)).String(),
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.System()},
			{Role: llm.RoleUser, Content: s.Prompt(st, env)},
		},
		Temperature: &temperature,
		MaxTokens:   r.maxTokens,
		JSONMode:    r.jsonMode,
	}

	resp, err := r.gen.Complete(ctx, req)
	if err != nil {
		return r.fail(logger, s.Name, &workflow.GenerationServiceError{Err: err}, start)
	}

	p, err := s.Decode(resp.Content, st, env)
	if err != nil {
		logger.Debug("Rejected stage output", slog.String("content", truncate(resp.Content, 500)))
		return r.fail(logger, s.Name, err, start)
	}

	logger.Info("Stage completed",
		slog.String("model", resp.Model),
		slog.Int("issues", len(p.Issues)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return p
}

func (r *Runner) fail(logger *slog.Logger, stage workflow.Stage, err error, start time.Time) workflow.Patch {
	se := workflow.NewStageError(stage, err)
	logger.Warn("Stage failed",
		slog.String("kind", string(se.Kind)),
		slog.String("error", err.Error()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return workflow.Patch{Err: se}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
