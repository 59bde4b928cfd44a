package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DedupRepository remembers processed event keys in Redis.
type DedupRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewDedupRepository constructs the repository. A nil client disables deduplication.
func NewDedupRepository(client *redis.Client, prefix string, logger *zap.Logger) *DedupRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DedupRepository{client: client, prefix: prefix, logger: logger}
}

// Claim returns true when key was not seen within ttl and records it.
func (r *DedupRepository) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Release forgets key so a failed side effect can be retried on redelivery.
func (r *DedupRepository) Release(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *DedupRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
