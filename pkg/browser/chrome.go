package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"igparser/pkg/config"
	"igparser/pkg/errors"
	"igparser/pkg/logger"
)

// Session is a headless Chromium instance with one tab, driven over the
// DevTools protocol.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      logger.Logger
	closeOnce   sync.Once
}

// Launch starts Chromium and opens the tab. The browser outlives ctx; it is
// only torn down by Close.
func Launch(ctx context.Context, cfg config.BrowserConfig, userAgent string, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "VizDisplayCompositor"),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent(userAgent),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			log.DebugWithFields("chromedp error", map[string]interface{}{"detail": fmt.Sprintf(format, args...)})
		}),
	)

	s := &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      log.WithField("component", "browser"),
	}

	// The first Run starts the browser process and binds it to the context it
	// is given, so it must be the tab context itself and not a derived one.
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, errors.Wrap(errors.ErrorTypeSessionInit, "launch_browser", err)
	}
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, errors.Wrap(errors.ErrorTypeSessionInit, "launch_browser", err)
	}

	s.logger.InfoWithFields("Browser launched", map[string]interface{}{
		"headless":  cfg.Headless,
		"exec_path": cfg.ExecPath,
	})
	return s, nil
}

// run executes actions on the tab. It stops early when ctx is cancelled or
// timeout elapses, without closing the tab.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.Navigate(url))
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *Session) SendKeys(ctx context.Context, selector, text string) error {
	return s.run(ctx, 0, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, 0, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *Session) ClickButtonWithText(ctx context.Context, texts []string, timeout time.Duration) (bool, error) {
	if len(texts) == 0 {
		return false, nil
	}

	var nodes []*cdp.Node
	if err := s.run(ctx, timeout, chromedp.Nodes(buttonTextXPath(texts), &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	if len(nodes) == 0 {
		return false, nil
	}

	if err := s.run(ctx, timeout, chromedp.MouseClickNode(nodes[0])); err != nil {
		return false, err
	}
	return true, nil
}

// buttonTextXPath builds //button[contains(text(), 'a') or contains(text(), 'b')]
func buttonTextXPath(texts []string) string {
	conds := make([]string, 0, len(texts))
	for _, t := range texts {
		conds = append(conds, fmt.Sprintf("contains(text(), '%s')", strings.ReplaceAll(t, "'", "")))
	}
	return "//button[" + strings.Join(conds, " or ") + "]"
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, 0, chromedp.Location(&loc))
	return loc, err
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *Session) EvaluateJSON(ctx context.Context, expr string) ([]byte, error) {
	var raw []byte
	err := s.run(ctx, 0, chromedp.Evaluate(expr, &raw))
	return raw, err
}

func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	err := s.run(ctx, 0, action)
	return buf, err
}

// Close shuts the tab and the browser process. It is safe to call more than
// once and never panics.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.ErrorWithFields("Browser teardown panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			}
		}()

		if err := chromedp.Cancel(s.ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to close browser tab cleanly")
		}
		s.cancelTab()
		s.cancelAlloc()
		s.logger.Info("Browser closed")
	})
}
