// Package breaker guards remote model servers with a per-model circuit breaker.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/local/pdftrio/internal/config"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrOpen is returned by Allow while a model's breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// Breaker tracks failures per model name.
type Breaker interface {
	Allow(ctx context.Context, model string) error
	Success(ctx context.Context, model string)
	Failure(ctx context.Context, model string)
}

// New returns a Redis-backed breaker when cfg.RedisURL is set, and an in-process one
// otherwise. The returned close func releases the Redis client.
func New(ctx context.Context, cfg config.BreakerConfig) (Breaker, func() error, error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("breaker: REDIS_URL not set, using in-process breaker")
		return NewLocal(cfg.BaseBackoff), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	log.Info().Str("addr", opts.Addr).Msg("breaker: using redis")
	return NewRedis(rdb, cfg.BaseBackoff, cfg.MaxBackoff), rdb.Close, nil
}

// backoff doubles base for every failure after the first, capped at ceiling.
func backoff(base, ceiling time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d > ceiling {
			return ceiling
		}
	}
	return d
}
