package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks a failure as transient.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a [RetryableError]. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a [RetryableError].
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Policy bounds how often an operation is attempted and how long to wait
// between attempts. The delay doubles after every failure, capped at
// MaxDelay when set.
type Policy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration

	// Retry decides whether an error is worth another attempt. Nil means
	// [IsRetryable].
	Retry func(error) bool
}

// MetadataPolicy is used for vendor metadata requests.
var MetadataPolicy = Policy{Attempts: 3, Delay: time.Second, MaxDelay: 4 * time.Second}

// Do runs fn until it succeeds, fails permanently or the attempts are used
// up, and returns the last error. Cancelling ctx during a wait returns
// ctx.Err().
func (p Policy) Do(ctx context.Context, fn func() error) error {
	retry := p.Retry
	if retry == nil {
		retry = IsRetryable
	}
	attempts := max(p.Attempts, 1)
	delay := p.Delay

	var err error
	for i := range attempts {
		if err = fn(); err == nil || !retry(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
