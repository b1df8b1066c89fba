// Package notify announces completed runs to other services.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/workflow"
)

// PlanCompletedEvent is published once per finished run.
type PlanCompletedEvent struct {
	RunID        string               `json:"run_id"`
	Status       storage.RunStatus    `json:"status"`
	Fingerprint  string               `json:"fingerprint"`
	Subtasks     int                  `json:"subtasks"`
	Scheduled    int                  `json:"scheduled"`
	TotalMinutes *int                 `json:"total_minutes"`
	TotalDays    *int                 `json:"total_days"`
	Failed       []workflow.Stage     `json:"failed_stages,omitempty"`
	ErrorKinds   []workflow.ErrorKind `json:"error_kinds,omitempty"`
	Issues       int                  `json:"issues"`
	CompletedAt  time.Time            `json:"completed_at"`
}

// NewPlanCompletedEvent summarises r.
func NewPlanCompletedEvent(r *storage.RunRecord) PlanCompletedEvent {
	ev := PlanCompletedEvent{
		RunID:        r.ID,
		Status:       r.Status,
		Fingerprint:  r.Fingerprint,
		Subtasks:     len(r.Subtasks),
		Scheduled:    len(r.Schedule),
		TotalMinutes: r.TotalMinutes,
		TotalDays:    r.TotalDays,
		Issues:       len(r.Issues),
		CompletedAt:  r.CreatedAt,
	}
	for _, e := range r.Errors {
		ev.Failed = append(ev.Failed, e.Stage)
		ev.ErrorKinds = append(ev.ErrorKinds, e.Kind)
	}
	return ev
}

// Publisher delivers completion events.
type Publisher interface {
	PlanCompleted(ctx context.Context, r *storage.RunRecord) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PlanCompleted(context.Context, *storage.RunRecord) error { return nil }
func (NopPublisher) Close() error                                            { return nil }

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes PlanCompletedEvent messages to one subject.
type NATSPublisher struct {
	nc      conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to url. Events go to subject.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("semplan"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject, logger: logger}, nil
}

// PlanCompleted publishes the event for r.
func (p *NATSPublisher) PlanCompleted(_ context.Context, r *storage.RunRecord) error {
	data, err := json.Marshal(NewPlanCompletedEvent(r))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Debug("Published plan completion", "run_id", r.ID, "subject", p.subject)
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// Open returns a NATSPublisher when url is set and a NopPublisher otherwise.
func Open(url, subject string, logger *slog.Logger) (Publisher, error) {
	if url == "" {
		return NopPublisher{}, nil
	}
	return NewNATSPublisher(url, subject, logger)
}
