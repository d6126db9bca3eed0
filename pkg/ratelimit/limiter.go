package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the full burst
	Reset()
}

// TokenBucket gates page loads so the browser never hits Instagram faster
// than requestsPerMinute, whatever the configured settle delays are.
type TokenBucket struct {
	mu                sync.Mutex
	limiter           *rate.Limiter
	requestsPerMinute int
	burst             int
}

// NewTokenBucket creates a limiter allowing requestsPerMinute with the given burst
func NewTokenBucket(requestsPerMinute, burst int) *TokenBucket {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		limiter:           rate.NewLimiter(perMinute(requestsPerMinute), burst),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// Allow checks if a request can proceed right now
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	l := tb.limiter
	tb.mu.Unlock()
	return l.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	tb.mu.Lock()
	l := tb.limiter
	tb.mu.Unlock()
	return l.Wait(ctx)
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = rate.NewLimiter(perMinute(tb.requestsPerMinute), tb.burst)
}

// Unlimited never blocks. Tests use it to keep runs instantaneous.
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}

// Sleep pauses for d or until ctx is done, whichever comes first. It returns
// ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer combines the fixed pacing delays with the navigation limiter. The
// zero value is not usable; use NewPacer.
type Pacer struct {
	limiter Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a Pacer backed by limiter and real sleeps
func NewPacer(limiter Limiter) *Pacer {
	if limiter == nil {
		limiter = Unlimited{}
	}
	return &Pacer{limiter: limiter, sleep: Sleep}
}

// NewInstantPacer never waits. Delays are still honored for cancellation.
func NewInstantPacer() *Pacer {
	return &Pacer{
		limiter: Unlimited{},
		sleep:   func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
}

// BeforeNavigation blocks until another page load is allowed
func (p *Pacer) BeforeNavigation(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Delay pauses for d unless ctx is cancelled first
func (p *Pacer) Delay(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}
