package resiliency

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func defaultExponentialBackoff() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxInterval(10*time.Second),
		backoff.WithMaxElapsedTime(2*time.Minute),
	)
}

// RetryGet calls the factory with the given backoff policy until it produces
// a value, returns an error wrapped by Permanent, or the context ends.
func RetryGet[T any](ctx context.Context, b backoff.BackOff, factory func() (T, error)) (T, error) {
	var lastAttemptErr error

	retval, err := backoff.RetryNotifyWithData(
		factory,
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			lastAttemptErr = err
		},
	)

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		// A retry cut short by the context still reports what the last
		// attempt said, not just the cancellation.
		return *new(T), errors.Join(lastAttemptErr, err)
	}
	if err != nil {
		return *new(T), err
	}
	return retval, nil
}

// Retry is the error-only counterpart of RetryGet.
func Retry(ctx context.Context, b backoff.BackOff, operation func() error) error {
	_, err := RetryGet(ctx, b, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// RetryExponentialWithTimeout calls the operation with exponential backoff
// until it succeeds, returns an error wrapped by Permanent, the context ends,
// or the timeout elapses.
func RetryExponentialWithTimeout(ctx context.Context, timeout time.Duration, operation func() error) error {
	timeoutCtx, cancelTimeoutCtx := context.WithTimeout(ctx, timeout)
	defer cancelTimeoutCtx()
	return Retry(timeoutCtx, defaultExponentialBackoff(), operation)
}

// Permanent marks an error as one that retrying will not fix, ending the
// retry loop.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
