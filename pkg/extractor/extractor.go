package extractor

import (
	"context"
	"time"

	"igparser/pkg/browser"
	"igparser/pkg/config"
	"igparser/pkg/errors"
	"igparser/pkg/instagram"
	"igparser/pkg/logger"
	"igparser/pkg/models"
	"igparser/pkg/ratelimit"
)

// Extractor reads follower counts from a loaded profile and visits the
// profile's posts to collect their metrics.
type Extractor struct {
	page   browser.Page
	pacer  *ratelimit.Pacer
	logger logger.Logger

	navigationTimeout time.Duration
	scrape            config.ScrapeConfig

	followerStrategies []FollowerStrategy
	postStrategies     []PostStrategy

	now func() time.Time
}

// New creates an Extractor driving page
func New(page browser.Page, pacer *ratelimit.Pacer, cfg *config.Config, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Extractor{
		page:               page,
		pacer:              pacer,
		logger:             log.WithField("component", "extractor"),
		navigationTimeout:  cfg.Browser.NavigationTimeout,
		scrape:             cfg.Scrape,
		followerStrategies: DefaultFollowerStrategies(),
		postStrategies:     DefaultPostStrategies(),
		now:                time.Now,
	}
}

// WithClock replaces the time source used for timestamps and the age cutoff
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// Followers returns the follower count shown on the profile, 0 if unknown
func (e *Extractor) Followers(profile *Document) int64 {
	n, strategy := ExtractFollowers(profile, e.followerStrategies)
	if n == 0 {
		e.logger.WarnWithFields("Follower count not found", map[string]interface{}{"url": profile.URL})
		return 0
	}
	e.logger.InfoWithFields("Follower count found", map[string]interface{}{
		"url":       profile.URL,
		"followers": n,
		"strategy":  strategy,
	})
	return n
}

// Posts visits up to MaxPostsPerAccount post links found on profile and
// returns the posts published within MaxPostAge. Failing posts are logged
// and left out. When ctx is cancelled the posts collected so far are returned.
func (e *Extractor) Posts(ctx context.Context, profile *Document, account models.Account, followers int64, networkID *int64) []models.Post {
	log := e.logger.WithField("account_id", account.ID)

	links := PostLinks(profile)
	if len(links) == 0 {
		log.Warn("No post links found")
		return nil
	}
	if len(links) > e.scrape.MaxPostsPerAccount {
		links = links[:e.scrape.MaxPostsPerAccount]
	}
	log.InfoWithFields("Processing posts", map[string]interface{}{"links": len(links)})

	var posts []models.Post
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}

		postLog := log.WithField("shortcode", instagram.Shortcode(link))
		metrics, err := e.postMetrics(ctx, link)
		switch {
		case err != nil:
			postLog.WithError(err).WarnWithFields("Post skipped", map[string]interface{}{"url": link})
		case e.isStale(metrics):
			postLog.InfoWithFields("Post older than max age, skipped", map[string]interface{}{
				"url":          link,
				"published_at": metrics.PublishedAt(),
			})
		default:
			posts = append(posts, models.Post{
				URL:         link,
				PublishedAt: metrics.PublishedAt(),
				Views:       metrics.Views,
				Likes:       metrics.Likes,
				Comments:    metrics.Comments,
				Timestamp:   metrics.Timestamp,
				AccountID:   account.ID,
				NetworkID:   networkID,
				Score:       models.Score(metrics.Views, metrics.Likes, metrics.Comments, followers),
			})
			postLog.DebugWithFields("Post processed", map[string]interface{}{
				"url":      link,
				"views":    metrics.Views,
				"likes":    metrics.Likes,
				"comments": metrics.Comments,
				"strategy": metrics.Strategy,
			})
		}

		if err := e.pacer.Delay(ctx, e.scrape.PostDelay); err != nil {
			break
		}
	}

	log.InfoWithFields("Posts processed", map[string]interface{}{"posts": len(posts)})
	return posts
}

func (e *Extractor) postMetrics(ctx context.Context, url string) (PostMetrics, error) {
	if err := e.pacer.BeforeNavigation(ctx); err != nil {
		return PostMetrics{}, err
	}
	if err := e.page.Navigate(ctx, url, e.navigationTimeout); err != nil {
		return PostMetrics{}, errors.Wrap(errors.ErrorTypeNavigation, "load_post", err)
	}
	if err := e.pacer.Delay(ctx, e.scrape.PostSettleDelay); err != nil {
		return PostMetrics{}, err
	}

	snap, err := browser.Capture(ctx, e.page, instagram.GlobalDataExpression)
	if err != nil {
		return PostMetrics{}, errors.Wrap(errors.ErrorTypeExtraction, "capture_post", err)
	}
	doc, err := NewDocument(snap)
	if err != nil {
		return PostMetrics{}, errors.Wrap(errors.ErrorTypeExtraction, "parse_post", err)
	}

	metrics, ok := ExtractPostMetrics(doc, e.postStrategies, e.now())
	if !ok {
		return PostMetrics{}, errors.New(errors.ErrorTypeExtraction, "extract_post", "no strategy produced a record")
	}
	return metrics, nil
}

func (e *Extractor) isStale(m PostMetrics) bool {
	return m.PublishedAt().Before(e.now().Add(-e.scrape.MaxPostAge))
}
