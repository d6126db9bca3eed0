package scraper

import (
	"context"
	"time"

	"igparser/pkg/browser"
	"igparser/pkg/models"
)

// Backend receives the parse results
type Backend interface {
	ListAccounts(ctx context.Context, networkID string) ([]models.Account, error)
	UpdateFollowers(ctx context.Context, accountID int64, networkID *int64, followers int64) error
	SubmitPosts(ctx context.Context, posts []models.Post, networkID *int64) error
	MarkParsed(ctx context.Context, accountID int64, networkID *int64, at time.Time) error
}

// Session is a launched browser tab that must be closed after the run
type Session interface {
	browser.Page
	Close()
}

// Launcher starts the browser session for one run
type Launcher func(ctx context.Context) (Session, error)
