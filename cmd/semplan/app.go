package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360studio/semplan/config"
	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/model"
	"github.com/c360studio/semplan/notify"
	"github.com/c360studio/semplan/pipeline"
	"github.com/c360studio/semplan/storage"
)

// callLogSize bounds the in-memory generation call log.
const callLogSize = 500

// App wires configuration, model routing, the pipeline and persistence.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *model.Registry
	calls    *llm.CallLog
	prom     *prometheus.Registry
	metrics  *pipeline.Metrics
	planner  *pipeline.Orchestrator

	store     storage.Store
	publisher notify.Publisher
}

// NewApp builds the pipeline from cfg. gen replaces the LLM client when
// non-nil (tests); otherwise requests go through the model registry.
func NewApp(cfg *config.Config, logger *slog.Logger, gen llm.Generator) (*App, error) {
	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		calls:     llm.NewCallLog(callLogSize),
		prom:      prometheus.NewRegistry(),
		publisher: notify.NopPublisher{},
	}
	a.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = pipeline.NewMetrics(a.prom)

	if gen == nil {
		retry := llm.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Pipeline.RetryAttempts
		gen = llm.NewClient(registry,
			llm.WithTimeout(cfg.Model.Timeout),
			llm.WithRetryConfig(retry),
			llm.WithLogger(logger),
			llm.WithCallRecorder(a.calls),
		)
	}
	if n := cfg.Pipeline.MaxConcurrentCalls; n > 0 {
		gen = pipeline.NewLimitedGenerator(gen, int64(n), a.metrics)
	}

	a.planner, err = pipeline.NewFromConfig(gen, cfg,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return a, nil
}

func loadRegistry(cfg *config.Config) (*model.Registry, error) {
	if cfg.Model.Registry == "" {
		return model.NewDefaultRegistry(), nil
	}
	r, err := model.LoadFromFile(cfg.Model.Registry)
	if err != nil {
		return nil, fmt.Errorf("load model registry: %w", err)
	}
	return r, nil
}

// OpenPersistence opens the configured store and, when nats.url is set,
// the completion publisher.
func (a *App) OpenPersistence(ctx context.Context) error {
	store, err := storage.Open(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store
	a.logger.Info("Storage ready", "driver", a.cfg.Storage.Driver)

	pub, err := notify.Open(a.cfg.NATS.URL, a.cfg.NATS.Subject, a.logger)
	if err != nil {
		// Events are optional; runs are still stored.
		a.logger.Warn("Plan events disabled", "url", a.cfg.NATS.URL, "error", err)
		return nil
	}
	a.publisher = pub
	if a.cfg.NATS.URL != "" {
		a.logger.Info("Publishing plan events", "subject", a.cfg.NATS.Subject)
	}
	return nil
}

// WatchRegistry reloads the model registry file until ctx is done. It is a
// no-op unless model.watch is set.
func (a *App) WatchRegistry(ctx context.Context) error {
	if !a.cfg.Model.Watch {
		return nil
	}
	w, err := model.NewWatcher(a.cfg.Model.Registry, a.registry, model.WithWatchLogger(a.logger))
	if err != nil {
		return fmt.Errorf("watch model registry: %w", err)
	}
	go w.Run(ctx)
	a.logger.Info("Watching model registry", "path", a.cfg.Model.Registry)
	return nil
}

// Close releases the store and publisher.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// Save stores r and announces it. A publish failure is only logged.
func (a *App) Save(ctx context.Context, r *storage.RunRecord) error {
	if err := a.store.Save(ctx, r); err != nil {
		return err
	}
	if err := a.publisher.PlanCompleted(ctx, r); err != nil {
		a.logger.Warn("Failed to publish plan completion", "run_id", r.ID, "error", err)
	}
	return nil
}

// now is the clock used for record timestamps.
var now = time.Now
