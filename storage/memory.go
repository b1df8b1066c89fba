package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory. Records are stored as JSON
// so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Save stores r.
func (m *MemoryStore) Save(_ context.Context, r *RunRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = data
	return nil
}

// Get returns the record with the given id.
func (m *MemoryStore) Get(_ context.Context, id string) (*RunRecord, error) {
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRecord(data)
}

// List returns records newest first.
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*RunRecord, 0, len(m.records))
	for _, data := range m.records {
		r, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		if opts.matches(r) {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return opts.truncate(out), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func decodeRecord(data []byte) (*RunRecord, error) {
	var r RunRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &r, nil
}

func sortNewestFirst(records []*RunRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
