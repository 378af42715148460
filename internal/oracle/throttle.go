package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/surfer/internal/config"
)

// throttle rate-limits oracle calls and retries transient failures.
// Operations mark unrecoverable errors with backoff.Permanent.
type throttle struct {
	limiter        *rate.Limiter
	maxRetries     int
	backoffFactory func() backoff.BackOff
}

func newThrottle(cfg config.OracleConfig) throttle {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	retryDelay := cfg.RetryDelay
	return throttle{
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: max(cfg.MaxRetries, 0),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			if retryDelay > 0 {
				b.InitialInterval = retryDelay
			}
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

func (t throttle) do(ctx context.Context, op func() error) error {
	attempt := func() error {
		if err := t.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return op()
	}
	b := backoff.WithContext(backoff.WithMaxRetries(t.backoffFactory(), uint64(t.maxRetries)), ctx)
	return backoff.Retry(attempt, b)
}
