package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// BucketRuns holds one entry per run, keyed by run id.
const BucketRuns = "SEMPLAN_RUNS"

// KVStore keeps records in a NATS JetStream key-value bucket.
type KVStore struct {
	nc   *nats.Conn
	runs jetstream.KeyValue
}

// ConnectKVStore connects to the NATS server at url and opens the runs
// bucket. Close drains the connection.
func ConnectKVStore(ctx context.Context, url string) (*KVStore, error) {
	nc, err := nats.Connect(url, nats.Name("semplan-storage"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	s, err := NewKVStore(ctx, js)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.nc = nc
	return s, nil
}

// NewKVStore opens the runs bucket on js, creating it if it doesn't exist.
// The caller owns the underlying connection.
func NewKVStore(ctx context.Context, js jetstream.JetStream) (*KVStore, error) {
	runs, err := getOrCreateBucket(ctx, js, BucketRuns)
	if err != nil {
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &KVStore{runs: runs}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Semplan %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Save stores r under its id.
func (s *KVStore) Save(ctx context.Context, r *RunRecord) error {
	if !validKey(r.ID) {
		return fmt.Errorf("invalid run id %q", r.ID)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if _, err := s.runs.Put(ctx, r.ID, data); err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *KVStore) Get(ctx context.Context, id string) (*RunRecord, error) {
	if !validKey(id) {
		return nil, ErrNotFound
	}
	entry, err := s.runs.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return decodeRecord(entry.Value())
}

// List returns records newest first. Entries that fail to load are skipped.
func (s *KVStore) List(ctx context.Context, opts ListOptions) ([]*RunRecord, error) {
	keys, err := s.runs.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run keys: %w", err)
	}

	out := make([]*RunRecord, 0, len(keys))
	for _, key := range keys {
		entry, err := s.runs.Get(ctx, key)
		if err != nil {
			continue
		}
		r, err := decodeRecord(entry.Value())
		if err != nil {
			continue
		}
		if opts.matches(r) {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return opts.truncate(out), nil
}

// Close drains the connection opened by ConnectKVStore.
func (s *KVStore) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

// validKey reports whether id is usable as a key-value key.
func validKey(id string) bool {
	if id == "" || strings.HasPrefix(id, ".") || strings.HasSuffix(id, ".") {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '/', c == '=', c == '.':
		default:
			return false
		}
	}
	return true
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "key not found")
}
