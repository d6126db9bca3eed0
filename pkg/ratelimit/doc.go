// Package ratelimit paces the browser against Instagram's abuse detection.
//
// Two mechanisms are combined in a Pacer:
//
//   - fixed settle and inter-item delays (Sleep), which return early when the
//     run's context is cancelled
//   - a TokenBucket on top of golang.org/x/time/rate that caps page loads per
//     minute regardless of the delays
//
// Usage:
//
//	pacer := ratelimit.NewPacer(ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize))
//	if err := pacer.BeforeNavigation(ctx); err != nil {
//	    return err
//	}
//	// navigate ...
//	_ = pacer.Delay(ctx, cfg.Scrape.PostSettleDelay)
//
// Tests use NewInstantPacer so delays cost nothing.
package ratelimit
