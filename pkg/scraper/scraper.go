package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"igparser/pkg/auth"
	"igparser/pkg/backend"
	"igparser/pkg/browser"
	"igparser/pkg/config"
	"igparser/pkg/diagnostics"
	"igparser/pkg/errors"
	"igparser/pkg/extractor"
	"igparser/pkg/instagram"
	"igparser/pkg/logger"
	"igparser/pkg/models"
	"igparser/pkg/navigator"
	"igparser/pkg/ratelimit"
)

// errorScreenshotTimeout bounds the screenshot taken after a failed account
const errorScreenshotTimeout = 15 * time.Second

// State is the phase a run is in
type State string

const (
	StateIdle       State = "idle"
	StateInit       State = "init"
	StateLoggedIn   State = "logged_in"
	StateProcessing State = "processing"
	StateFinished   State = "finished"
	StateAborted    State = "aborted"
)

// Scraper drives one browser session through login and every account
// queued by the backend
type Scraper struct {
	config  *config.Config
	backend Backend
	launch  Launcher
	creds   *auth.Credentials
	pacer   *ratelimit.Pacer
	logger  logger.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state State
}

// New creates a Scraper. Page loads are limited by cfg.RateLimit.
func New(cfg *config.Config, b Backend, launch Launcher, creds *auth.Credentials, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scraper{
		config:  cfg,
		backend: b,
		launch:  launch,
		creds:   creds,
		pacer:   ratelimit.NewPacer(ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)),
		logger:  log.WithField("component", "scraper"),
		now:     time.Now,
		state:   StateIdle,
	}
}

// NewFromConfig wires the chromedp browser and the HTTP backend client
func NewFromConfig(cfg *config.Config, creds *auth.Credentials, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	launch := func(ctx context.Context) (Session, error) {
		return browser.Launch(ctx, cfg.Browser, cfg.Instagram.UserAgent, log)
	}
	return New(cfg, backend.NewClient(cfg.Backend, log), launch, creds, log)
}

// WithPacer replaces the pacing used for delays and page loads
func (s *Scraper) WithPacer(p *ratelimit.Pacer) *Scraper {
	s.pacer = p
	return s
}

// WithClock replaces the time source
func (s *Scraper) WithClock(now func() time.Time) *Scraper {
	s.now = now
	return s
}

// State returns the phase of the current or last run
func (s *Scraper) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scraper) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// components are the per-run workers sharing the session's page
type components struct {
	page        browser.Page
	navigator   *navigator.Navigator
	extractor   *extractor.Extractor
	diagnostics *diagnostics.Sink
}

// Run launches the browser, logs in and processes every account the backend
// returns for networkID (empty for all networks). Account failures are
// counted, not returned; the error is set only when the run was aborted.
// A cancelled ctx ends the run early with summary.Cancelled set.
func (s *Scraper) Run(ctx context.Context, networkID string) (summary models.RunSummary, err error) {
	summary = models.RunSummary{
		RunID:     uuid.NewString(),
		NetworkID: networkID,
		StartedAt: s.now(),
	}
	log := s.logger.WithFields(map[string]interface{}{
		"run_id":     summary.RunID,
		"network_id": networkID,
	})
	s.setState(StateInit)
	log.Info("Parse run started")

	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrorTypeUnknown, "run", fmt.Sprintf("panic: %v", r))
		}
		if err != nil {
			summary.Aborted = true
			s.setState(StateAborted)
			log.WithError(err).Error("Parse run aborted")
		} else {
			s.setState(StateFinished)
		}
		summary.FinishedAt = s.now()
		logger.LogMetrics(log, "parse_run", map[string]interface{}{
			"total":       summary.Total,
			"processed":   summary.Processed,
			"failed":      summary.Failed,
			"totalPosts":  summary.TotalPosts,
			"aborted":     summary.Aborted,
			"cancelled":   summary.Cancelled,
			"duration_ms": summary.Duration().Milliseconds(),
		})
	}()

	if s.creds == nil {
		return summary, errors.New(errors.ErrorTypeStartupConfig, "run", "no Instagram credentials")
	}

	session, err := s.launch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return summary, nil
		}
		return summary, errors.Wrap(errors.ErrorTypeSessionInit, "launch_browser", err)
	}
	defer s.teardown(session, log)

	c := components{
		page:        session,
		navigator:   navigator.New(session, s.pacer, s.config, log),
		extractor:   extractor.New(session, s.pacer, s.config, log).WithClock(s.now),
		diagnostics: diagnostics.NewSink(s.config.Diagnostics, log).WithClock(s.now),
	}

	login, err := auth.NewAuthenticator(session, s.pacer, s.config, log).Login(ctx, s.creds.Username, s.creds.Password)
	if err != nil {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return summary, nil
		}
		return summary, err
	}
	if !login.OK {
		return summary, errors.New(errors.ErrorTypeAuth, "login", string(login.Reason))
	}
	for _, w := range login.Warnings {
		log.WarnWithFields("Login warning", map[string]interface{}{"warning": w.String()})
	}
	s.setState(StateLoggedIn)

	accounts, err := s.backend.ListAccounts(ctx, networkID)
	if err != nil {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return summary, nil
		}
		return summary, err
	}
	summary.Total = len(accounts)
	if len(accounts) == 0 {
		log.Warn("No accounts to parse")
		return summary, nil
	}

	s.setState(StateProcessing)
	for i, account := range accounts {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		posts, accErr := s.processAccount(ctx, c, account, log)
		switch {
		case accErr == nil:
			summary.Processed++
			summary.TotalPosts += posts
		case ctx.Err() != nil:
			summary.Cancelled = true
		default:
			summary.Failed++
		}
		if summary.Cancelled {
			break
		}

		if i < len(accounts)-1 {
			if err := s.pacer.Delay(ctx, s.config.Scrape.AccountDelay); err != nil {
				summary.Cancelled = true
				break
			}
		}
	}

	log.InfoWithFields("Parse run finished", map[string]interface{}{
		"processed": summary.Processed,
		"failed":    summary.Failed,
	})
	return summary, nil
}

// processAccount returns the number of submitted posts. Profiles that are
// private, missing or fail to load are returned as errors without a
// screenshot; failures after the profile loaded get one.
func (s *Scraper) processAccount(ctx context.Context, c components, account models.Account, runLog logger.Logger) (int, error) {
	log := runLog.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"url":        account.URL,
		"username":   instagram.UsernameFromProfileURL(account.URL),
	})

	if err := account.Validate(); err != nil {
		log.WithError(err).Warn("Invalid account skipped")
		return 0, errors.Wrap(errors.ErrorTypeExtraction, "validate_account", err)
	}

	nav := c.navigator.NavigateToAccount(ctx, account.URL)
	if !nav.Success {
		log.WarnWithFields("Account skipped", map[string]interface{}{
			"reason": nav.Reason,
			"detail": nav.Detail,
		})
		return 0, errors.New(errors.ErrorTypeNavigation, "navigate_account", string(nav.Reason))
	}

	posts, err := s.parseAccount(ctx, c, account, log)
	if err != nil {
		log.WithError(err).Error("Account failed")
		if ctx.Err() == nil {
			shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorScreenshotTimeout)
			c.diagnostics.SaveErrorScreenshot(shotCtx, c.page, account.ID)
			cancel()
		}
		return 0, err
	}

	log.InfoWithFields("Account processed", map[string]interface{}{"posts": posts})
	return posts, nil
}

func (s *Scraper) parseAccount(ctx context.Context, c components, account models.Account, log logger.Logger) (int, error) {
	c.diagnostics.SaveDebugInfo(ctx, c.page, account.ID, account.URL)

	snap, err := browser.Capture(ctx, c.page, "")
	if err != nil {
		return 0, errors.Wrap(errors.ErrorTypeExtraction, "capture_profile", err)
	}
	profile, err := extractor.NewDocument(snap)
	if err != nil {
		return 0, errors.Wrap(errors.ErrorTypeExtraction, "parse_profile", err)
	}

	followers := c.extractor.Followers(profile)
	if followers > 0 {
		if err := s.backend.UpdateFollowers(ctx, account.ID, account.NetworkID, followers); err != nil {
			return 0, err
		}
	}

	posts := c.extractor.Posts(ctx, profile, account, followers, account.NetworkID)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(posts) > 0 {
		if err := s.backend.SubmitPosts(ctx, posts, account.NetworkID); err != nil {
			return 0, err
		}
	} else {
		log.Info("No recent posts to submit")
	}

	if err := s.backend.MarkParsed(ctx, account.ID, account.NetworkID, s.now()); err != nil {
		return 0, err
	}
	return len(posts), nil
}

// teardown closes the browser; nothing it does escapes the run
func (s *Scraper) teardown(session Session, log logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorWithFields("Browser teardown panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	session.Close()
	log.Debug("Browser closed")
}
