// Package snapshot persists the read-model artifact exposed to
// monitoring consumers: the last aggregation result plus the event set
// it was computed over. An absent snapshot means "no data yet" and
// yields all-zero metrics, never an error.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hmtran/floodgate/internal/playbook"
	"github.com/hmtran/floodgate/internal/stats"
)

// UploadStats summarizes the most recent write-path activity.
type UploadStats struct {
	Uploaded         int     `json:"uploaded"`
	Failed           int     `json:"failed"`
	LastBatchQuality float64 `json:"last_batch_quality"`
}

// Snapshot is the sole artifact exposed to read-only consumers.
type Snapshot struct {
	LastUpdated time.Time        `json:"lastUpdated"`
	Stats       UploadStats      `json:"stats"`
	Metrics     stats.Aggregated `json:"metrics"`
	Events      []playbook.Event `json:"events"`
}

// Empty is the snapshot served before any data exists.
func Empty() *Snapshot {
	return &Snapshot{Metrics: stats.Zero()}
}

// Store persists and serves snapshots.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// RedisStore keeps the snapshot under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed store. ttl of zero means the
// snapshot never expires.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}
	return &snap, nil
}

// FileStore keeps the snapshot as a JSON file, for deployments without
// redis.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	// Write-then-rename so readers never observe a partial snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", s.path, err)
	}
	return &snap, nil
}
