package models

import (
	"fmt"
	"time"

	v "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Account is a profile the backend has queued for parsing. The parser only
// reads it and patches followers/is_parsed.
type Account struct {
	ID        int64      `json:"id"`
	URL       string     `json:"url"`
	NetworkID *int64     `json:"network_id,omitempty"`
	IsParsed  bool       `json:"is_parsed"`
	ParsedAt  *time.Time `json:"parsed_at,omitempty"`
	Followers *int64     `json:"followers,omitempty"`
}

func (a Account) Validate() error {
	return v.ValidateStruct(&a,
		v.Field(&a.ID, v.Required, v.Min(int64(1))),
		v.Field(&a.URL, v.Required, is.URL),
	)
}

// Post is one reel or post with its engagement counters
type Post struct {
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Views       int64     `json:"views"`
	Likes       int64     `json:"likes"`
	Comments    int64     `json:"comments"`
	Timestamp   int64     `json:"timestamp"`
	AccountID   int64     `json:"account_id"`
	NetworkID   *int64    `json:"network_id"`
	Score       float64   `json:"score"`
}

// EngagementRate is (likes+comments)/views, 0 without views
func EngagementRate(views, likes, comments int64) float64 {
	if views <= 0 {
		return 0
	}
	return float64(likes+comments) / float64(views)
}

// Score is the reach-normalized engagement (views/followers) * engagement rate.
// It is 0 when either views or followers is 0.
func Score(views, likes, comments, followers int64) float64 {
	if views <= 0 || followers <= 0 {
		return 0
	}
	return float64(views) / float64(followers) * EngagementRate(views, likes, comments)
}

// NavigationReason says why a profile could not be processed
type NavigationReason string

const (
	ReasonPrivate         NavigationReason = "private"
	ReasonNotFound        NavigationReason = "not_found"
	ReasonNavigationError NavigationReason = "navigation_error"
)

// NavigationResult is the outcome of loading a profile page
type NavigationResult struct {
	Success bool             `json:"success"`
	Reason  NavigationReason `json:"reason,omitempty"`
	Detail  string           `json:"detail,omitempty"`
}

// NavigationOK is the successful NavigationResult
func NavigationOK() NavigationResult {
	return NavigationResult{Success: true}
}

// NavigationFailed builds an unsuccessful NavigationResult
func NavigationFailed(reason NavigationReason, detail string) NavigationResult {
	return NavigationResult{Reason: reason, Detail: detail}
}

// Warning records a failure that was swallowed by a best-effort operation
type Warning struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Operation, w.Message)
}

// NewWarning builds a Warning from an error
func NewWarning(op string, err error) Warning {
	return Warning{Operation: op, Message: err.Error()}
}

// RunSummary holds the counters of one parse run. It is logged, never stored.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	NetworkID  string    `json:"network_id,omitempty"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	TotalPosts int       `json:"totalPosts"`
	Aborted    bool      `json:"aborted"`
	Cancelled  bool      `json:"cancelled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall time of the run so far
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
