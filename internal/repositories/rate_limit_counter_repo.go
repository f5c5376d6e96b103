package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimitCounterRepository keeps expiring attempt counters in Redis
type RateLimitCounterRepository struct {
	redis *redis.Client
}

// NewRateLimitCounterRepository creates a new RateLimitCounterRepository
func NewRateLimitCounterRepository(client *redis.Client) *RateLimitCounterRepository {
	return &RateLimitCounterRepository{redis: client}
}

// Get returns the counter value and whether it exists
func (r *RateLimitCounterRepository) Get(ctx context.Context, key string) (int64, bool, error) {
	count, err := r.redis.Get(ctx, rateLimitKeyPrefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", models.ErrRateLimiterUnavailable, err)
	}
	return count, true, nil
}

// IncrWithTTL increments the counter and refreshes its expiry in one
// MULTI/EXEC transaction.
func (r *RateLimitCounterRepository) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	fullKey := rateLimitKeyPrefix + key

	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.Expire(ctx, fullKey, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrRateLimiterUnavailable, err)
	}
	return incr.Val(), nil
}

// Delete removes the counter. Deleting a missing key is a no-op.
func (r *RateLimitCounterRepository) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, rateLimitKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrRateLimiterUnavailable, err)
	}
	return nil
}
