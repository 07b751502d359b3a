package breaker

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/local/pdftrio/internal/config"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	base, ceiling := 30*time.Second, 5*time.Minute
	assert.Equal(t, 30*time.Second, backoff(base, ceiling, 1))
	assert.Equal(t, 60*time.Second, backoff(base, ceiling, 2))
	assert.Equal(t, 240*time.Second, backoff(base, ceiling, 4))
	assert.Equal(t, ceiling, backoff(base, ceiling, 5))
	assert.Equal(t, ceiling, backoff(base, ceiling, 50))
}

func TestLocalBreaker(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(40 * time.Millisecond)

	require.NoError(t, b.Allow(ctx, "bert_model"))
	b.Failure(ctx, "bert_model")
	assert.ErrorIs(t, b.Allow(ctx, "bert_model"), ErrOpen)
	assert.NoError(t, b.Allow(ctx, "image_model"), "breakers are per model")

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, b.Allow(ctx, "bert_model"), "trial call after cooldown")
	b.Success(ctx, "bert_model")
	assert.NoError(t, b.Allow(ctx, "bert_model"))
	assert.NoError(t, b.Allow(ctx, "bert_model"))
}

func TestLocalBreakerHalfOpenSettles(t *testing.T) {
	ctx := context.Background()
	b := NewLocal(30 * time.Millisecond)

	require.NoError(t, b.Allow(ctx, "bert_model"))
	b.Failure(ctx, "bert_model")
	time.Sleep(50 * time.Millisecond)

	// A half-open call that ends without tripping still releases its permit.
	require.NoError(t, b.Allow(ctx, "bert_model"))
	b.Success(ctx, "bert_model")
	for i := 0; i < 3; i++ {
		assert.NoError(t, b.Allow(ctx, "bert_model"))
		b.Success(ctx, "bert_model")
	}
}

func TestNewWithoutRedisIsLocal(t *testing.T) {
	b, closeFn, err := New(context.Background(), config.BreakerConfig{BaseBackoff: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &LocalBreaker{}, b)
	assert.NoError(t, closeFn())

	_, _, err = New(context.Background(), config.BreakerConfig{RedisURL: "not a url"})
	assert.Error(t, err)
}

// Set PDFTRIO_TEST_REDIS_URL (e.g. redis://localhost:6379/15) to run against a real server.
func TestRedisBreaker(t *testing.T) {
	url := os.Getenv("PDFTRIO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PDFTRIO_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	model := "test_model_" + uuid.NewString()
	defer rdb.Del(ctx, key(model))

	b := NewRedis(rdb, time.Second, 4*time.Second)
	require.NoError(t, b.Allow(ctx, model))

	b.Failure(ctx, model)
	assert.ErrorIs(t, b.Allow(ctx, model), ErrOpen)

	failures, err := rdb.HGet(ctx, key(model), "failures").Int()
	require.NoError(t, err)
	assert.Equal(t, 1, failures)

	b.Success(ctx, model)
	assert.NoError(t, b.Allow(ctx, model))
	exists, err := rdb.Exists(ctx, key(model)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisBreakerSingleTrial(t *testing.T) {
	url := os.Getenv("PDFTRIO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PDFTRIO_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	model := "test_model_" + uuid.NewString()
	defer rdb.Del(ctx, key(model), trialKey(model))

	b := NewRedis(rdb, time.Second, 4*time.Second)
	b.Failure(ctx, model)
	// Pretend the cooldown is over.
	require.NoError(t, rdb.HSet(ctx, key(model), "retry_at", time.Now().Add(-time.Second).Unix()).Err())

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow(ctx, model) == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, allowed.Load(), "half-open admits one caller")

	state, err := rdb.HGet(ctx, key(model), "state").Result()
	require.NoError(t, err)
	assert.Equal(t, "half_open", state)

	b.Success(ctx, model)
	assert.NoError(t, b.Allow(ctx, model))
	assert.NoError(t, b.Allow(ctx, model))
	exists, err := rdb.Exists(ctx, trialKey(model)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
