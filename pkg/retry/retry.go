package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"igparser/pkg/errors"
	"igparser/pkg/logger"
)

// Operation is a single attempt of a retried call
type Operation func(ctx context.Context) error

// Policy describes how often and when an operation is retried
type Policy struct {
	// MaxAttempts counts the first call; values below 1 mean a single attempt
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf reports whether a failed attempt may be repeated
	RetryIf func(error) bool
	Logger  logger.Logger
}

// NewPolicy retries transient backend failures up to retries times with
// exponential backoff starting at base
func NewPolicy(retries int, base time.Duration, log logger.Logger) Policy {
	return Policy{
		MaxAttempts: retries + 1,
		Backoff:     NewExponentialBackoff(base),
		RetryIf:     IsTransient,
		Logger:      log,
	}
}

// IsTransient reports whether err is a transport failure or a response the
// backend may answer differently on the next try
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var e *errors.Error
	if stderrors.As(err, &e) {
		return IsRetryableStatus(e.Code)
	}
	return true
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
// Zero stands for a request that never got a response.
func IsRetryableStatus(statusCode int) bool {
	switch {
	case statusCode == 0:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, runs out
// of attempts or ctx is cancelled. The last error is returned unwrapped.
func Do(ctx context.Context, op Operation, p Policy) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = IsTransient
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			if attempt > 1 && p.Logger != nil {
				p.Logger.DebugWithFields("Operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if attempt >= attempts || !retryIf(err) || ctx.Err() != nil {
			return err
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff.NextDelay(attempt)
		}
		if p.Logger != nil {
			p.Logger.WithError(err).WarnWithFields("Retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": attempts,
			})
		}

		if waitErr := Wait(ctx, delay); waitErr != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult runs op under the same rules as Do and returns its result
func DoWithResult[T any](ctx context.Context, op func(ctx context.Context) (T, error), p Policy) (T, error) {
	var result T
	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, p)
	return result, err
}
