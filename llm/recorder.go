package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CallRecord describes a single LLM API call for run tracing.
type CallRecord struct {
	// RequestID uniquely identifies this LLM call.
	RequestID string `json:"request_id"`

	// TraceID correlates this call with the pipeline run that made it.
	TraceID string `json:"trace_id"`

	// Stage is the pipeline stage that issued the call (if any).
	Stage string `json:"stage,omitempty"`

	Capability string    `json:"capability"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Messages   []Message `json:"messages"`
	Response   string    `json:"response"`

	Usage        TokenUsage `json:"usage"`
	FinishReason string     `json:"finish_reason"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`

	// Error contains any error message if the call failed.
	Error string `json:"error,omitempty"`

	Retries       int      `json:"retries"`
	FallbacksUsed []string `json:"fallbacks_used,omitempty"`
}

// CallRecorder receives call records from the Client.
type CallRecorder interface {
	Record(ctx context.Context, rec *CallRecord) error
}

// CallLog is an in-memory, bounded CallRecorder.
type CallLog struct {
	mu      sync.Mutex
	limit   int
	records []*CallRecord
}

// NewCallLog creates a call log that keeps at most limit records (0 = unbounded).
func NewCallLog(limit int) *CallLog {
	return &CallLog{limit: limit}
}

// Record stores a call record, evicting the oldest when full.
func (l *CallLog) Record(ctx context.Context, rec *CallRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if rec == nil || rec.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	if l.limit > 0 && len(l.records) > l.limit {
		l.records = l.records[len(l.records)-l.limit:]
	}
	return nil
}

// ByTrace returns the records of one trace in start order.
func (l *CallLog) ByTrace(traceID string) []*CallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*CallRecord
	for _, rec := range l.records {
		if rec.TraceID == traceID {
			out = append(out, rec)
		}
	}
	SortByStartTime(out)
	return out
}

// Len returns the number of stored records.
func (l *CallLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// SortByStartTime sorts records chronologically by StartedAt.
func SortByStartTime(records []*CallRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
}

// TraceContext holds trace information carried on a context.
type TraceContext struct {
	TraceID string
	Stage   string
}

type traceContextKey struct{}

// WithTraceContext adds trace information to a context.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTraceContext extracts trace information from a context.
func GetTraceContext(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(traceContextKey{}).(TraceContext); ok {
		return tc
	}
	return TraceContext{}
}
