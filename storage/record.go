// Package storage persists completed pipeline runs. Records can be kept in
// memory, in a SQLite file, or in a NATS JetStream key-value bucket.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/c360studio/semplan/config"
	"github.com/c360studio/semplan/workflow"
)

// RunStatus summarises a stored run.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusDegraded  RunStatus = "degraded"
)

// RunRecord is a finished run as stored and served. The run state is
// embedded so its fields appear at the top level of the JSON document.
type RunRecord struct {
	ID          string    `json:"id"`
	Status      RunStatus `json:"status"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	*workflow.RunState
}

// NewRunRecord wraps a finished run state in a record with a fresh id.
func NewRunRecord(st *workflow.RunState, now time.Time) *RunRecord {
	status := StatusCompleted
	if st.Degraded() {
		status = StatusDegraded
	}
	return &RunRecord{
		ID:          uuid.New().String(),
		Status:      status,
		Fingerprint: Fingerprint(st.OriginalTask),
		CreatedAt:   now.UTC(),
		RunState:    st,
	}
}

// Fingerprint returns the blake3 hash of the task text with surrounding
// whitespace trimmed and inner whitespace runs collapsed to one space.
// Runs of the same task share a fingerprint.
func Fingerprint(task string) string {
	normalized := strings.Join(strings.Fields(task), " ")
	sum := blake3.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum[:])
}

// ListOptions filters List results.
type ListOptions struct {
	// Limit caps the number of records. 0 means no limit.
	Limit int
	// Fingerprint restricts results to runs of one task.
	Fingerprint string
}

// Store persists run records.
type Store interface {
	// Save stores a record. Saving an existing id replaces it.
	Save(ctx context.Context, r *RunRecord) error
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*RunRecord, error)
	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]*RunRecord, error)
	Close() error
}

// Open returns the store selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite, "":
		return NewSQLiteStore(cfg.Storage.Path)
	case config.DriverNATS:
		return ConnectKVStore(ctx, cfg.NATS.URL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// matches reports whether r passes the filter in opts.
func (o ListOptions) matches(r *RunRecord) bool {
	return o.Fingerprint == "" || r.Fingerprint == o.Fingerprint
}

// truncate applies opts.Limit to records already sorted newest first.
func (o ListOptions) truncate(records []*RunRecord) []*RunRecord {
	if o.Limit > 0 && len(records) > o.Limit {
		return records[:o.Limit]
	}
	return records
}
