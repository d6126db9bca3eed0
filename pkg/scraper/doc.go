// Package scraper runs a parse cycle.
//
// A run moves through these states:
//
//	init -> logged_in -> processing -> finished
//	init -> aborted   (browser launch, login or account listing failed)
//
// For every account the backend queues, the Scraper opens the profile,
// skips it if it is private or missing, saves a debug snapshot, stores the
// follower count, collects the recent posts and submits them, and finally
// marks the account parsed. A failing account is counted and followed by an
// error screenshot; the run moves on to the next one.
//
// Usage:
//
//	s := scraper.NewFromConfig(cfg, creds, logger.GetLogger())
//	summary, err := s.Run(ctx, cfg.Scrape.NetworkID)
//	if err != nil {
//	    // the run was aborted
//	}
//
// Cancelling ctx stops the run at the next wait; the browser is always
// closed and the summary is returned with Cancelled set.
package scraper
