package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry policy bounds. Retries are always bounded; rate limits and blocks
// never retry here, callers escalate those to a different engine or proxy.
const (
	defaultMaxRetries      = 3
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second
)

// ErrGiveUp wraps the last error when all retry attempts are exhausted.
var ErrGiveUp = errors.New("retries exhausted")

// Retry runs op with bounded exponential backoff. Only outcomes whose kind
// is Retryable are retried; anything else returns immediately.
func Retry(ctx context.Context, op func() (Kind, error)) error {
	return RetryN(ctx, defaultMaxRetries, op)
}

// RetryN is Retry with an explicit attempt bound.
func RetryN(ctx context.Context, maxRetries uint64, op func() (Kind, error)) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultInitialInterval
	policy.MaxInterval = defaultMaxInterval

	wrapped := func() error {
		kind, err := op()
		if err == nil {
			return nil
		}
		if !kind.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return errors.Join(ErrGiveUp, err)
	}
	return nil
}
