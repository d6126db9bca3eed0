package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Page is the single browser tab a parse run drives. Components receive it
// by reference from the session controller and never use it concurrently.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitVisible blocks until selector matches a visible element
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	SendKeys(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// ClickButtonWithText clicks the first button whose text contains any of
	// texts. It reports false without error when no such button exists.
	ClickButtonWithText(ctx context.Context, texts []string, timeout time.Duration) (bool, error)
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// EvaluateJSON runs expr in the page and returns its JSON encoded result
	EvaluateJSON(ctx context.Context, expr string) ([]byte, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
}

// Snapshot is everything the extraction strategies read from a loaded page
type Snapshot struct {
	URL        string
	HTML       string
	GlobalData json.RawMessage
	TakenAt    time.Time
}

// Capture reads the current page into a Snapshot. globalExpr is evaluated
// for GlobalData; its failure leaves GlobalData empty.
func Capture(ctx context.Context, page Page, globalExpr string) (Snapshot, error) {
	snap := Snapshot{TakenAt: time.Now()}

	current, err := page.URL(ctx)
	if err != nil {
		return snap, fmt.Errorf("failed to read page url: %w", err)
	}
	snap.URL = current

	html, err := page.HTML(ctx)
	if err != nil {
		return snap, fmt.Errorf("failed to read page html: %w", err)
	}
	snap.HTML = html

	if globalExpr != "" {
		if raw, err := page.EvaluateJSON(ctx, globalExpr); err == nil && len(raw) > 0 && string(raw) != "null" {
			snap.GlobalData = raw
		}
	}

	return snap, nil
}
