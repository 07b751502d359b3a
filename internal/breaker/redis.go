package breaker

import (
	"context"
	"strconv"
	"time"

	"github.com/local/pdftrio/internal/metrics"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "pdftrio:cb:"

// RedisBreaker keeps breaker state in Redis so every worker process sees the same view.
type RedisBreaker struct {
	redis       *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewRedis(rdb *redis.Client, baseBackoff, maxBackoff time.Duration) *RedisBreaker {
	return &RedisBreaker{redis: rdb, baseBackoff: baseBackoff, maxBackoff: maxBackoff}
}

func key(model string) string { return keyPrefix + model }

// trialKey marks the one caller let through while half-open.
func trialKey(model string) string { return keyPrefix + model + ":trial" }

func (cb *RedisBreaker) trialTTL() time.Duration {
	if cb.baseBackoff < time.Second {
		return time.Second
	}
	return cb.baseBackoff
}

// Failure opens the breaker with an exponentially growing cooldown.
func (cb *RedisBreaker) Failure(ctx context.Context, model string) {
	k := key(model)

	failuresStr, _ := cb.redis.HGet(ctx, k, "failures").Result()
	failures, _ := strconv.Atoi(failuresStr)
	failures++

	cooldown := backoff(cb.baseBackoff, cb.maxBackoff, failures)
	retryAt := time.Now().Add(cooldown).Unix()

	cb.redis.HSet(ctx, k, map[string]interface{}{
		"state":     "open",
		"retry_at":  retryAt,
		"failures":  failures,
		"opened_at": time.Now().Unix(),
	})
	cb.redis.Expire(ctx, k, cb.maxBackoff*2)
	cb.redis.Del(ctx, trialKey(model))
	metrics.BreakerOpened(model)

	log.Warn().
		Str("model", model).
		Dur("cooldown", cooldown).
		Int("failures", failures).
		Time("retry_at", time.Unix(retryAt, 0)).
		Msg("circuit breaker OPENED")
}

// Allow fails fast while the cooldown runs. After it exactly one caller wins the
// trial key and goes through; the others keep failing fast until it settles or the
// key expires.
func (cb *RedisBreaker) Allow(ctx context.Context, model string) error {
	k := key(model)

	vals, err := cb.redis.HMGet(ctx, k, "state", "retry_at").Result()
	if err != nil || len(vals) != 2 {
		// Redis trouble must not take the models down with it.
		return nil
	}
	state, _ := vals[0].(string)
	if state != "open" && state != "half_open" {
		return nil
	}
	retryAtStr, _ := vals[1].(string)
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)

	if time.Now().Unix() >= retryAt {
		won, err := cb.redis.SetNX(ctx, trialKey(model), 1, cb.trialTTL()).Result()
		if err != nil {
			return nil
		}
		if won {
			cb.redis.HSet(ctx, k, "state", "half_open")
			log.Info().Str("model", model).Msg("circuit breaker moved to HALF-OPEN")
			return nil
		}
	}
	metrics.BreakerRejected(model)
	return ErrOpen
}

// Success resets the breaker.
func (cb *RedisBreaker) Success(ctx context.Context, model string) {
	k := key(model)
	state, _ := cb.redis.HGet(ctx, k, "state").Result()
	if state == "" || state == "closed" {
		return
	}
	cb.redis.Del(ctx, k, trialKey(model))
	metrics.BreakerClosed(model)
	log.Info().Str("model", model).Msg("circuit breaker CLOSED (reset)")
}

// Ping reports whether the Redis server is reachable.
func (cb *RedisBreaker) Ping(ctx context.Context) error {
	return cb.redis.Ping(ctx).Err()
}
