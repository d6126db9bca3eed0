package navigator

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"igparser/pkg/browser"
	"igparser/pkg/config"
	"igparser/pkg/instagram"
	"igparser/pkg/logger"
	"igparser/pkg/models"
	"igparser/pkg/ratelimit"
)

// Navigator loads profile pages and recognizes the ones that cannot be parsed
type Navigator struct {
	page   browser.Page
	pacer  *ratelimit.Pacer
	logger logger.Logger

	navigationTimeout time.Duration
	settleDelay       time.Duration
}

// New creates a Navigator driving page
func New(page browser.Page, pacer *ratelimit.Pacer, cfg *config.Config, log logger.Logger) *Navigator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Navigator{
		page:              page,
		pacer:             pacer,
		logger:            log.WithField("component", "navigator"),
		navigationTimeout: cfg.Browser.NavigationTimeout,
		settleDelay:       cfg.Scrape.ProfileSettleDelay,
	}
}

// NavigateToAccount opens url and waits for the profile to render. Private
// and missing profiles are reported in the result; it never returns an error.
func (n *Navigator) NavigateToAccount(ctx context.Context, url string) models.NavigationResult {
	log := n.logger.WithField("url", url)
	log.Info("Opening profile")

	if err := n.pacer.BeforeNavigation(ctx); err != nil {
		return models.NavigationFailed(models.ReasonNavigationError, err.Error())
	}
	if err := n.page.Navigate(ctx, url, n.navigationTimeout); err != nil {
		log.WithError(err).Error("Profile navigation failed")
		return models.NavigationFailed(models.ReasonNavigationError, err.Error())
	}
	if err := n.pacer.Delay(ctx, n.settleDelay); err != nil {
		return models.NavigationFailed(models.ReasonNavigationError, err.Error())
	}

	html, err := n.page.HTML(ctx)
	if err != nil {
		log.WithError(err).Error("Profile HTML unavailable")
		return models.NavigationFailed(models.ReasonNavigationError, err.Error())
	}

	if reason, ok := Classify(html); ok {
		log.WarnWithFields("Profile unavailable", map[string]interface{}{"reason": reason})
		return models.NavigationFailed(reason, "")
	}
	return models.NavigationOK()
}

// Classify looks for the private and not-found markers in a profile page,
// in that order. ok is false when neither is present.
func Classify(html string) (models.NavigationReason, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	markers := []struct {
		text   string
		reason models.NavigationReason
	}{
		{instagram.PrivateAccountMarker, models.ReasonPrivate},
		{instagram.NotFoundMarker, models.ReasonNotFound},
	}

	headings := doc.Find(instagram.MarkerSelector)
	for _, m := range markers {
		found := false
		headings.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = strings.Contains(s.Text(), m.text)
			return !found
		})
		if found {
			return m.reason, true
		}
	}
	return "", false
}
