package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/local/pdftrio/internal/metrics"
	"github.com/rs/zerolog/log"
)

// LocalBreaker keeps one failsafe-go circuit breaker per model in process memory.
type LocalBreaker struct {
	delay time.Duration

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[any]
}

func NewLocal(delay time.Duration) *LocalBreaker {
	if delay <= 0 {
		delay = 30 * time.Second
	}
	return &LocalBreaker{delay: delay, breakers: make(map[string]circuitbreaker.CircuitBreaker[any])}
}

func (l *LocalBreaker) get(model string) circuitbreaker.CircuitBreaker[any] {
	l.mu.Lock()
	defer l.mu.Unlock()
	cb, ok := l.breakers[model]
	if !ok {
		cb = circuitbreaker.Builder[any]().
			WithFailureThreshold(1).
			WithDelay(l.delay).
			Build()
		l.breakers[model] = cb
	}
	return cb
}

func (l *LocalBreaker) Allow(_ context.Context, model string) error {
	if l.get(model).TryAcquirePermit() {
		return nil
	}
	metrics.BreakerRejected(model)
	return ErrOpen
}

func (l *LocalBreaker) Success(_ context.Context, model string) {
	cb := l.get(model)
	wasClosed := cb.IsClosed()
	cb.RecordSuccess()
	if !wasClosed && cb.IsClosed() {
		metrics.BreakerClosed(model)
		log.Info().Str("model", model).Msg("circuit breaker CLOSED (reset)")
	}
}

func (l *LocalBreaker) Failure(_ context.Context, model string) {
	cb := l.get(model)
	wasOpen := cb.IsOpen()
	cb.RecordFailure()
	if !wasOpen && cb.IsOpen() {
		metrics.BreakerOpened(model)
		log.Warn().Str("model", model).Dur("cooldown", l.delay).Msg("circuit breaker OPENED")
	}
}
