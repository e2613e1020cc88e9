package processor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// defaultMaxDelay caps the backoff of a policy without MaxDelay.
const defaultMaxDelay = 24 * time.Hour

// RetryPolicy bounds how processor calls are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// exponential doubles from BaseDelay up to MaxDelay with no jitter and no
// elapsed-time limit; attempts are bounded separately.
func (p RetryPolicy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultMaxDelay
	}
	b.Reset()
	return b
}

// Backoff returns the wait before the given retry (1-based), doubling from
// BaseDelay and capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	b := p.exponential()
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrOutcomeUnknown)
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(p.exponential(), uint64(attempts-1)), ctx)

	var last error
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		last = fn(attempt)
		if last != nil && !Retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, policy)

	if err != nil && last != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return errors.Join(last, err)
	}
	return err
}
