package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igparser/pkg/auth"
	"igparser/pkg/backend"
	"igparser/pkg/browser"
	"igparser/pkg/config"
	"igparser/pkg/errors"
	"igparser/pkg/instagram"
	"igparser/pkg/logger"
	"igparser/pkg/models"
	"igparser/pkg/ratelimit"
)

const (
	loginURL = "https://www.instagram.com/accounts/login/"
	homeURL  = "https://www.instagram.com/"
)

var fixedNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type mockSession struct {
	*browser.MockPage
	closed       int32
	panicOnClose bool
}

func (m *mockSession) Close() {
	atomic.AddInt32(&m.closed, 1)
	if m.panicOnClose {
		panic("browser already gone")
	}
}

func (m *mockSession) Closed() int {
	return int(atomic.LoadInt32(&m.closed))
}

type fakeBackend struct {
	mu sync.Mutex

	accounts  []models.Account
	listErr   error
	submitErr error
	onList    func()

	listNetwork string
	followers   map[int64]int64
	posts       map[int64][]models.Post
	parsed      []int64
}

func newFakeBackend(accounts ...models.Account) *fakeBackend {
	return &fakeBackend{
		accounts:  accounts,
		followers: map[int64]int64{},
		posts:     map[int64][]models.Post{},
	}
}

func (f *fakeBackend) ListAccounts(ctx context.Context, networkID string) ([]models.Account, error) {
	f.mu.Lock()
	f.listNetwork = networkID
	hook := f.onList
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.accounts, f.listErr
}

func (f *fakeBackend) UpdateFollowers(ctx context.Context, accountID int64, networkID *int64, followers int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followers[accountID] = followers
	return nil
}

func (f *fakeBackend) SubmitPosts(ctx context.Context, posts []models.Post, networkID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.posts[posts[0].AccountID] = posts
	return nil
}

func (f *fakeBackend) MarkParsed(ctx context.Context, accountID int64, networkID *int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parsed = append(f.parsed, accountID)
	return nil
}

func profileHTML(followers string, links ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><header><h2>brand</h2></header><main>`)
	fmt.Fprintf(&b, `<a href="/brand/followers/"><span>%s</span></a>`, followers)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s"><img></a>`, l)
	}
	b.WriteString(`</main></body></html>`)
	return b.String()
}

func postHTML(views, likes, comments int, publishedAt time.Time) string {
	return fmt.Sprintf(`<html><head><script type="application/json">{"require":[["a","b",null,[{"__bbox":{"result":{"data":{"media":{"video_view_count":%d,"like_count":%d,"comment_count":%d,"taken_at_timestamp":%d}}}}}]]]}</script></head><body></body></html>`,
		views, likes, comments, publishedAt.Unix())
}

// newSession serves the login flow plus the given documents
func newSession(docs map[string]string) *mockSession {
	page := browser.NewMockPage()
	page.AddDocument(loginURL, &browser.MockDocument{HTML: `<input name="username"><input name="password"><button type="submit">Log in</button>`})
	page.AddDocument(homeURL, &browser.MockDocument{HTML: `<button>Not Now</button>`})
	page.OnClick = func(p *browser.MockPage, selector string) {
		if selector == instagram.SubmitButtonSelector {
			p.SetURL(homeURL)
		}
	}
	for url, html := range docs {
		page.AddDocument(url, &browser.MockDocument{HTML: html})
	}
	return &mockSession{MockPage: page}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Diagnostics.Directory = t.TempDir()
	cfg.Browser.LoginTimeout = 50 * time.Millisecond
	return cfg
}

func newTestScraper(cfg *config.Config, b Backend, session *mockSession, tl logger.Logger) *Scraper {
	launch := func(ctx context.Context) (Session, error) { return session, nil }
	creds := &auth.Credentials{Username: "parser_bot", Password: "hunter2"}
	return New(cfg, b, launch, creds, tl).
		WithPacer(ratelimit.NewInstantPacer()).
		WithClock(func() time.Time { return fixedNow })
}

func int64p(v int64) *int64 { return &v }

func standardFixture() map[string]string {
	fresh := fixedNow.Add(-24 * time.Hour)
	stale := fixedNow.Add(-10 * 24 * time.Hour)
	return map[string]string{
		"https://www.instagram.com/one/":    profileHTML("2.5k", "/p/A/", "/reel/B/", "/p/C/"),
		"https://www.instagram.com/two/":    profileHTML("1,000", "/p/D/"),
		"https://www.instagram.com/p/A/":    postHTML(1000, 80, 20, fresh),
		"https://www.instagram.com/reel/B/": postHTML(500, 10, 5, fresh),
		"https://www.instagram.com/p/C/":    postHTML(900, 90, 9, stale),
		"https://www.instagram.com/p/D/":    postHTML(300, 30, 3, fresh),
	}
}

func TestRunProcessesAccounts(t *testing.T) {
	session := newSession(standardFixture())
	fb := newFakeBackend(
		models.Account{ID: 1, URL: "https://www.instagram.com/one/", NetworkID: int64p(3)},
		models.Account{ID: 2, URL: "https://www.instagram.com/two/"},
	)
	cfg := testConfig(t)

	summary, err := newTestScraper(cfg, fb, session, logger.NewNopLogger()).Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, summary.TotalPosts)
	assert.False(t, summary.Aborted)
	assert.False(t, summary.Cancelled)
	assert.NotEmpty(t, summary.RunID)

	assert.Equal(t, map[int64]int64{1: 2500, 2: 1000}, fb.followers)
	assert.Equal(t, []int64{1, 2}, fb.parsed)

	require.Len(t, fb.posts[1], 2, "the stale post is dropped")
	assert.Equal(t, "https://www.instagram.com/p/A/", fb.posts[1][0].URL)
	assert.Equal(t, int64p(3), fb.posts[1][0].NetworkID)
	assert.InDelta(t, 0.04, fb.posts[1][0].Score, 1e-9)
	require.Len(t, fb.posts[2], 1)
	assert.Nil(t, fb.posts[2][0].NetworkID)

	assert.Equal(t, 1, session.Closed())
	assert.Equal(t, 2, session.PopupsDismissed())

	shots, err := filepath.Glob(filepath.Join(cfg.Diagnostics.Directory, "account-*.html"))
	require.NoError(t, err)
	assert.Len(t, shots, 2)
}

func TestRunSkipsUnavailableProfiles(t *testing.T) {
	docs := standardFixture()
	docs["https://www.instagram.com/private/"] = `<main><h2>This Account is Private</h2></main>`
	docs["https://www.instagram.com/gone/"] = `<main><h2>Sorry, this page isn't available.</h2></main>`
	session := newSession(docs)

	fb := newFakeBackend(
		models.Account{ID: 1, URL: "https://www.instagram.com/private/"},
		models.Account{ID: 2, URL: "https://www.instagram.com/gone/"},
		models.Account{ID: 3, URL: "https://www.instagram.com/two/"},
	)
	tl := logger.NewTestLogger()

	summary, err := newTestScraper(testConfig(t), fb, session, tl).Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, []int64{3}, fb.parsed)
	assert.NotContains(t, fb.followers, int64(1))
	assert.True(t, tl.HasMessage("Account skipped"))

	var skipped []interface{}
	for _, m := range tl.GetMessages() {
		if m.Message == "Account skipped" {
			skipped = append(skipped, m.Fields["username"])
		}
	}
	assert.Equal(t, []interface{}{"private", "gone"}, skipped)
}

func TestRunSubmissionFailureContinues(t *testing.T) {
	session := newSession(standardFixture())
	fb := newFakeBackend(
		models.Account{ID: 1, URL: "https://www.instagram.com/one/"},
		models.Account{ID: 2, URL: "https://www.instagram.com/two/"},
	)
	fb.submitErr = &errors.Error{Type: errors.ErrorTypeSubmission, Op: "submit_posts", Code: 500}
	cfg := testConfig(t)

	summary, err := newTestScraper(cfg, fb, session, logger.NewNopLogger()).Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.Empty(t, fb.parsed, "accounts are only marked parsed after their posts are stored")

	shots, err := filepath.Glob(filepath.Join(cfg.Diagnostics.Directory, "error-*.png"))
	require.NoError(t, err)
	assert.Len(t, shots, 2)
}

func TestRunInvalidAccountCountsAsFailed(t *testing.T) {
	session := newSession(standardFixture())
	fb := newFakeBackend(
		models.Account{ID: 0, URL: "not a url"},
		models.Account{ID: 2, URL: "https://www.instagram.com/two/"},
	)

	summary, err := newTestScraper(testConfig(t), fb, session, logger.NewNopLogger()).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Processed)
	assert.NotContains(t, session.Visits(), "not a url")
}

func TestRunNoAccounts(t *testing.T) {
	session := newSession(nil)
	fb := newFakeBackend()
	tl := logger.NewTestLogger()

	summary, err := newTestScraper(testConfig(t), fb, session, tl).Run(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, "7", fb.listNetwork)
	assert.True(t, tl.HasMessage("No accounts to parse"))
	assert.Equal(t, 1, session.Closed())
}

func TestRunLoginRejectedAborts(t *testing.T) {
	session := newSession(nil)
	session.OnClick = nil
	fb := newFakeBackend(models.Account{ID: 1, URL: "https://www.instagram.com/one/"})
	s := newTestScraper(testConfig(t), fb, session, logger.NewNopLogger())

	summary, err := s.Run(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeAuth, errors.TypeOf(err))
	assert.Contains(t, err.Error(), string(instagram.LoginBadCredentials))
	assert.True(t, summary.Aborted)
	assert.Equal(t, StateAborted, s.State())
	assert.Equal(t, 1, session.Closed())
	assert.Empty(t, fb.parsed)
}

func TestRunLaunchFailureAborts(t *testing.T) {
	fb := newFakeBackend()
	launch := func(ctx context.Context) (Session, error) { return nil, fmt.Errorf("chrome not found") }
	s := New(testConfig(t), fb, launch, &auth.Credentials{Username: "u", Password: "p"}, logger.NewNopLogger())

	summary, err := s.Run(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeSessionInit, errors.TypeOf(err))
	assert.True(t, errors.IsFatal(errors.TypeOf(err)))
	assert.True(t, summary.Aborted)
}

func TestRunListFailureAborts(t *testing.T) {
	session := newSession(nil)
	fb := newFakeBackend()
	fb.listErr = &errors.Error{Type: errors.ErrorTypeSubmission, Op: "list_accounts", Code: 502}

	summary, err := newTestScraper(testConfig(t), fb, session, logger.NewNopLogger()).Run(context.Background(), "")
	require.Error(t, err)
	assert.True(t, summary.Aborted)
	assert.Equal(t, 1, errors.ExitCode(err))
	assert.Equal(t, 1, session.Closed())
}

func TestRunCancelledBetweenAccounts(t *testing.T) {
	session := newSession(standardFixture())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb := newFakeBackend(
		models.Account{ID: 1, URL: "https://www.instagram.com/one/"},
		models.Account{ID: 2, URL: "https://www.instagram.com/two/"},
	)
	fb.onList = cancel

	summary, err := newTestScraper(testConfig(t), fb, session, logger.NewNopLogger()).Run(ctx, "")
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.False(t, summary.Aborted)
	assert.Equal(t, 0, summary.Processed+summary.Failed)
	assert.Equal(t, 1, session.Closed(), "teardown runs on cancellation")
}

func TestRunTeardownPanicIsContained(t *testing.T) {
	session := newSession(nil)
	session.panicOnClose = true
	tl := logger.NewTestLogger()

	_, err := newTestScraper(testConfig(t), newFakeBackend(), session, tl).Run(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, tl.HasMessage("Browser teardown panicked"))
}

type panickingBackend struct{ *fakeBackend }

func (p panickingBackend) ListAccounts(ctx context.Context, networkID string) ([]models.Account, error) {
	panic("unexpected payload")
}

func TestRunPanicClosesBrowser(t *testing.T) {
	session := newSession(nil)

	summary, err := newTestScraper(testConfig(t), panickingBackend{newFakeBackend()}, session, logger.NewNopLogger()).
		Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected payload")
	assert.True(t, summary.Aborted)
	assert.Equal(t, 1, session.Closed())
}

func TestRunAgainstHTTPBackend(t *testing.T) {
	var mu sync.Mutex
	var patches []map[string]interface{}
	var batches []map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		var body map[string]interface{}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/accounts/for-parsing/":
			assert.Equal(t, "3", r.URL.Query().Get("network_id"))
			_, _ = w.Write([]byte(`[
				{"id":1,"url":"https://www.instagram.com/one/","network_id":3},
				{"id":2,"url":"https://www.instagram.com/two/","network_id":3}
			]`))
		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/accounts/"):
			body["path"] = r.URL.Path
			patches = append(patches, body)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && r.URL.Path == "/posts/bulk-create/":
			batches = append(batches, body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Backend.BaseURL = srv.URL
	session := newSession(standardFixture())
	client := backend.NewClient(cfg.Backend, logger.NewNopLogger())

	summary, err := newTestScraper(cfg, client, session, logger.NewNopLogger()).Run(context.Background(), "3")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, summary.TotalPosts)

	mu.Lock()
	defer mu.Unlock()

	var followers, parsed int
	for _, p := range patches {
		if _, ok := p["followers"]; ok {
			followers++
			if p["path"] == "/accounts/1/" {
				assert.Equal(t, float64(2500), p["followers"])
			}
		}
		if p["is_parsed"] == true {
			parsed++
			assert.Equal(t, "2024-06-10T12:00:00.000Z", p["parsed_at"])
		}
		assert.Equal(t, float64(3), p["network_id"])
	}
	assert.Equal(t, 2, followers)
	assert.Equal(t, 2, parsed)

	require.Len(t, batches, 2)
	first := batches[0]["posts"].([]interface{})
	assert.Len(t, first, 2)
}
