// Package redischeckpoint implements checkpoint.Storage backed by Redis,
// giving checkpoints low-latency durability suitable for frequent
// before_node/after_node snapshots.
package redischeckpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentkit/agentrt/checkpoint"
)

const (
	defaultKeyPrefix = "agentrt:checkpoint:"
	defaultIndexKey  = "agentrt:checkpoints"
)

// Options configures the Redis-backed checkpoint store.
type Options struct {
	// Redis is the connection used to store checkpoints. Required.
	Redis *redis.Client
	// KeyPrefix namespaces individual checkpoint keys. Defaults to
	// "agentrt:checkpoint:".
	KeyPrefix string
	// IndexKey names the sorted set tracking run_id -> saved_at used by
	// Latest and List. Defaults to "agentrt:checkpoints".
	IndexKey string
	// OperationTimeout bounds individual Redis calls. Zero means no timeout.
	OperationTimeout time.Duration
}

// Store implements checkpoint.Storage on top of Redis: each checkpoint is a
// JSON string at KeyPrefix+runID, with a sorted set (scored by SavedAt unix
// nanoseconds) indexing every known run for Latest/List.
type Store struct {
	redis     *redis.Client
	keyPrefix string
	indexKey  string
	timeout   time.Duration
}

// New constructs a Store backed by the provided Redis connection. Returns
// an error if opts.Redis is nil.
func New(opts Options) (*Store, error) {
	if opts.Redis == nil {
		return nil, errors.New("redischeckpoint: redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	index := opts.IndexKey
	if index == "" {
		index = defaultIndexKey
	}
	return &Store{redis: opts.Redis, keyPrefix: prefix, indexKey: index, timeout: opts.OperationTimeout}, nil
}

func (s *Store) key(runID string) string {
	return s.keyPrefix + runID
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Put stores cp under runID and updates the Latest/List index.
func (s *Store) Put(ctx context.Context, runID string, cp checkpoint.Checkpoint) error {
	if runID == "" {
		return errors.New("redischeckpoint: run id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("redischeckpoint: encode checkpoint: %w", err)
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(runID), data, 0)
	pipe.ZAdd(ctx, s.indexKey, redis.Z{Score: float64(cp.SavedAt.UnixNano()), Member: runID})
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the checkpoint stored for runID, or checkpoint.ErrNotFound.
func (s *Store) Get(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.redis.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("redischeckpoint: decode checkpoint: %w", err)
	}
	return cp, nil
}

// Latest returns the most recently saved checkpoint across all runs.
func (s *Store) Latest(ctx context.Context) (checkpoint.Checkpoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.redis.ZRevRange(ctx, s.indexKey, 0, 0).Result()
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if len(ids) == 0 {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	return s.Get(ctx, ids[0])
}

// List returns every run_id with a stored checkpoint, ordered oldest to
// newest by save time.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.redis.ZRange(ctx, s.indexKey, 0, -1).Result()
}

// Delete removes the checkpoint stored for runID, if any.
func (s *Store) Delete(ctx context.Context, runID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey, runID)
	_, err := pipe.Exec(ctx)
	return err
}

var _ checkpoint.Storage = (*Store)(nil)
