package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c360studio/semplan/workflow"
)

// Metrics holds the Prometheus collectors for pipeline runs. A nil *Metrics
// records nothing.
type Metrics struct {
	StageDuration      *prometheus.HistogramVec
	StageFailures      *prometheus.CounterVec
	Runs               *prometheus.CounterVec
	GenerationInflight prometheus.Gauge
}

// NewMetrics creates the pipeline metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "semplan_stage_duration_seconds",
				Help:    "Stage execution duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"stage", "outcome"},
		),
		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semplan_stage_failures_total",
				Help: "Total number of stage failures by error kind",
			},
			[]string{"stage", "kind"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semplan_runs_total",
				Help: "Total number of pipeline runs by result",
			},
			[]string{"result"},
		),
		GenerationInflight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "semplan_generation_inflight",
				Help: "Generation calls currently in flight",
			},
		),
	}
}

func (m *Metrics) observeStage(stage workflow.Stage, p workflow.Patch, d time.Duration) {
	if m == nil {
		return
	}
	outcome := string(workflow.OutcomeSucceeded)
	if p.Err != nil {
		outcome = string(workflow.OutcomeFailed)
		m.StageFailures.WithLabelValues(string(stage), string(p.Err.Kind)).Inc()
	}
	m.StageDuration.WithLabelValues(string(stage), outcome).Observe(d.Seconds())
}

func (m *Metrics) observeRun(st *workflow.RunState) {
	if m == nil {
		return
	}
	result := "complete"
	if st.Degraded() {
		result = "degraded"
	}
	m.Runs.WithLabelValues(result).Inc()
}

func (m *Metrics) inflight(delta float64) {
	if m == nil {
		return
	}
	m.GenerationInflight.Add(delta)
}
