package services_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
	"github.com/BradenHooton/loginguard/internal/services"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRateLimiter(t *testing.T) (*services.RateLimitService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return services.NewRateLimitService(repositories.NewRateLimitCounterRepository(client), logger), mr
}

func TestRateLimitService_MissingCounterNotLimited(t *testing.T) {
	limiter, _ := newRedisRateLimiter(t)

	limited, err := limiter.IsLimited(context.Background(), services.IPKey("10.0.0.1"), 5, 15*time.Minute)

	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRateLimitService_LimitedAfterMaxIncrements(t *testing.T) {
	limiter, _ := newRedisRateLimiter(t)
	ctx := context.Background()
	key := services.EmailKey("user@example.com")

	for i := 1; i <= 5; i++ {
		limited, err := limiter.IsLimited(ctx, key, 5, 15*time.Minute)
		require.NoError(t, err)
		assert.False(t, limited, "should not be limited before attempt %d", i)

		require.NoError(t, limiter.Increment(ctx, key, 15*time.Minute))
	}

	limited, err := limiter.IsLimited(ctx, key, 5, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, limited)
}

func TestRateLimitService_ResetClearsAnyCount(t *testing.T) {
	limiter, _ := newRedisRateLimiter(t)
	ctx := context.Background()
	key := services.IPKey("10.0.0.1")

	for i := 0; i < 12; i++ {
		require.NoError(t, limiter.Increment(ctx, key, time.Minute))
	}

	require.NoError(t, limiter.Reset(ctx, key))

	limited, err := limiter.IsLimited(ctx, key, 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRateLimitService_ResetIdempotent(t *testing.T) {
	limiter, _ := newRedisRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.NoError(t, limiter.Reset(ctx, services.IPKey("10.0.0.99")))
	}
}

func TestRateLimitService_WindowSlidesOnIncrement(t *testing.T) {
	limiter, mr := newRedisRateLimiter(t)
	ctx := context.Background()
	key := services.IPKey("10.0.0.1")

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Increment(ctx, key, time.Minute))
		mr.FastForward(30 * time.Second)
	}

	// 2.5 minutes since the first attempt, 30s since the last
	limited, err := limiter.IsLimited(ctx, key, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, limited)

	mr.FastForward(31 * time.Second)
	limited, err = limiter.IsLimited(ctx, key, 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRateLimitService_CheckLoginKeysIndependent(t *testing.T) {
	limiter, _ := newRedisRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Increment(ctx, services.EmailKey("victim@example.com"), time.Minute))
	}

	ipLimited, emailLimited, err := limiter.CheckLogin(ctx, "10.0.0.7", "victim@example.com", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ipLimited)
	assert.True(t, emailLimited)

	ipLimited, emailLimited, err = limiter.CheckLogin(ctx, "10.0.0.7", "other@example.com", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ipLimited)
	assert.False(t, emailLimited)
}

func TestRateLimitService_RecordFailureAndResetLogin(t *testing.T) {
	limiter, mr := newRedisRateLimiter(t)
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailure(ctx, "10.0.0.1", "user@example.com", time.Minute))
	assert.True(t, mr.Exists("ratelimit:ip:10.0.0.1"))
	assert.True(t, mr.Exists("ratelimit:email:user@example.com"))

	require.NoError(t, limiter.ResetLogin(ctx, "10.0.0.1", "user@example.com"))
	assert.False(t, mr.Exists("ratelimit:ip:10.0.0.1"))
	assert.False(t, mr.Exists("ratelimit:email:user@example.com"))
}

func TestRateLimitService_StoreFailureSurfaces(t *testing.T) {
	limiter, mr := newRedisRateLimiter(t)
	mr.Close()

	_, _, err := limiter.CheckLogin(context.Background(), "10.0.0.1", "user@example.com", 5, time.Minute)

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRateLimiterUnavailable))
}

func TestRateLimitService_ConcurrentFailuresAllCounted(t *testing.T) {
	limiter, mr := newRedisRateLimiter(t)
	ctx := context.Background()
	const failures = 20

	var wg sync.WaitGroup
	for i := 0; i < failures; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.RecordFailure(ctx, "10.0.0.1", "user@example.com", 15*time.Minute))
		}()
	}
	wg.Wait()

	for _, key := range []string{"ratelimit:ip:10.0.0.1", "ratelimit:email:user@example.com"} {
		count, err := mr.Get(key)
		require.NoError(t, err)
		assert.Equal(t, "20", count, key)
		assert.Equal(t, 15*time.Minute, mr.TTL(key), key)
	}

	ipLimited, emailLimited, err := limiter.CheckLogin(ctx, "10.0.0.1", "user@example.com", failures, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, ipLimited)
	assert.True(t, emailLimited)
}
