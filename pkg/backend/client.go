package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"igparser/pkg/config"
	"igparser/pkg/errors"
	"igparser/pkg/logger"
	"igparser/pkg/models"
	"igparser/pkg/retry"
)

const (
	accountsForParsingPath = "/accounts/for-parsing/"
	accountPath            = "/accounts/{id}/"
	postsBulkCreatePath    = "/posts/bulk-create/"

	// bodyPreviewLimit caps how much of an error response ends up in logs
	bodyPreviewLimit = 512
)

// Client submits parse results to the backend. Failures are returned as
// *errors.Error of type submission. Only the account listing is retried;
// every write is a single request.
type Client struct {
	http   *resty.Client
	retry  retry.Policy
	logger logger.Logger
}

// NewClient creates a backend client for cfg.BaseURL
func NewClient(cfg config.BackendConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "backend")

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetLogger(restyLogger{log})

	return &Client{
		http:   httpClient,
		retry:  retry.NewPolicy(cfg.Retries, cfg.RetryDelay, log),
		logger: log,
	}
}

type followersUpdate struct {
	Followers int64  `json:"followers"`
	NetworkID *int64 `json:"network_id"`
}

type parsedUpdate struct {
	IsParsed  bool   `json:"is_parsed"`
	ParsedAt  string `json:"parsed_at"`
	NetworkID *int64 `json:"network_id"`
}

type postsBatch struct {
	Posts     []models.Post `json:"posts"`
	NetworkID *int64        `json:"network_id"`
}

// ListAccounts fetches the accounts queued for parsing, optionally filtered
// by network. An empty networkID means all networks.
func (c *Client) ListAccounts(ctx context.Context, networkID string) ([]models.Account, error) {
	accounts, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]models.Account, error) {
		req := c.http.R().SetContext(ctx)
		if networkID != "" {
			req.SetQueryParam("network_id", networkID)
		}

		resp, err := req.Get(accountsForParsingPath)
		if err := c.check("list_accounts", resp, err); err != nil {
			return nil, err
		}

		// The body is decoded whatever Content-Type the backend sends.
		var accounts []models.Account
		if err := json.Unmarshal(resp.Body(), &accounts); err != nil {
			c.logger.WithError(err).ErrorWithFields("Invalid account list", map[string]interface{}{
				"body": preview(resp),
			})
			return nil, &errors.Error{
				Type:    errors.ErrorTypeSubmission,
				Op:      "list_accounts",
				Code:    resp.StatusCode(),
				Message: "invalid account list",
				Err:     err,
			}
		}
		return accounts, nil
	}, c.retry)
	if err != nil {
		return nil, err
	}

	c.logger.InfoWithFields("Accounts fetched", map[string]interface{}{
		"network_id": networkID,
		"count":      len(accounts),
	})
	return accounts, nil
}

// UpdateFollowers stores the follower count of an account
func (c *Client) UpdateFollowers(ctx context.Context, accountID int64, networkID *int64, followers int64) error {
	return c.patchAccount(ctx, "update_followers", accountID,
		followersUpdate{Followers: followers, NetworkID: networkID})
}

// MarkParsed flags the account as done for this cycle
func (c *Client) MarkParsed(ctx context.Context, accountID int64, networkID *int64, at time.Time) error {
	return c.patchAccount(ctx, "mark_parsed", accountID, parsedUpdate{
		IsParsed:  true,
		ParsedAt:  at.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		NetworkID: networkID,
	})
}

func (c *Client) patchAccount(ctx context.Context, op string, accountID int64, body interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", fmt.Sprint(accountID)).
		SetBody(body).
		Patch(accountPath)
	return c.check(op, resp, err)
}

// SubmitPosts bulk-creates posts
func (c *Client) SubmitPosts(ctx context.Context, posts []models.Post, networkID *int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(postsBatch{Posts: posts, NetworkID: networkID}).
		Post(postsBulkCreatePath)
	return c.check("submit_posts", resp, err)
}

// check logs the call and turns transport failures and non-2xx responses
// into submission errors
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		var status int
		var url string
		if resp != nil && resp.Request != nil {
			url = resp.Request.URL
			status = resp.StatusCode()
		}
		c.logger.WithError(err).ErrorWithFields("Backend request failed", map[string]interface{}{
			"operation": op,
			"url":       url,
		})
		return &errors.Error{Type: errors.ErrorTypeSubmission, Op: op, Code: status, Err: err}
	}

	logger.LogRequest(c.logger, resp.Request.Method, resp.Request.URL, resp.StatusCode(), resp.Time())

	if !resp.IsSuccess() {
		return &errors.Error{
			Type:    errors.ErrorTypeSubmission,
			Op:      op,
			Code:    resp.StatusCode(),
			Message: preview(resp),
		}
	}
	return nil
}

func preview(resp *resty.Response) string {
	body := resp.String()
	if body == "" {
		return http.StatusText(resp.StatusCode())
	}
	if len(body) > bodyPreviewLimit {
		return body[:bodyPreviewLimit] + "..."
	}
	return body
}

// restyLogger routes resty's own warnings into the structured logger
type restyLogger struct {
	log logger.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
