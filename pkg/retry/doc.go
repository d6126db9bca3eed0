// Package retry repeats backend calls that failed for transient reasons.
//
// A transport failure, 429 or 5xx response is retried with exponential
// backoff and jitter; client errors and cancellation end the loop at once.
// Only idempotent calls should be wrapped.
//
//	policy := retry.NewPolicy(2, time.Second, log)
//	accounts, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]models.Account, error) {
//		return fetch(ctx)
//	}, policy)
package retry
