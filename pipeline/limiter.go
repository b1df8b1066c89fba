package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/c360studio/semplan/llm"
)

// LimitedGenerator caps the number of concurrent generation calls across
// every run sharing it.
type LimitedGenerator struct {
	next    llm.Generator
	sem     *semaphore.Weighted
	metrics *Metrics
}

// NewLimitedGenerator wraps next. A limit of zero or less leaves calls
// unlimited but still counts them as in flight.
func NewLimitedGenerator(next llm.Generator, limit int64, metrics *Metrics) *LimitedGenerator {
	g := &LimitedGenerator{next: next, metrics: metrics}
	if limit > 0 {
		g.sem = semaphore.NewWeighted(limit)
	}
	return g
}

// Complete implements llm.Generator. Waiting for a slot honours ctx.
func (g *LimitedGenerator) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, llm.NewTransientError(err)
		}
		defer g.sem.Release(1)
	}

	g.metrics.inflight(1)
	defer g.metrics.inflight(-1)

	return g.next.Complete(ctx, req)
}
