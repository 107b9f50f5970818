package ai

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	defaultRetryInterval = 500 * time.Millisecond
	maxRetryInterval     = 10 * time.Second
)

// RetryPolicy retries transient provider errors (429 and 5xx) inside a single
// attempt. The cascade never sees the intermediate failures.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
}

// Do runs op, retrying while it returns a temporary StatusError.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	if p.MaxRetries <= 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultRetryInterval
	}
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func shouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	return false
}

// newLimiter returns nil for rps <= 0, meaning unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func waitTurn(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
