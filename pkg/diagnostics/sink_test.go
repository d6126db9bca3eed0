package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igparser/pkg/browser"
	"igparser/pkg/config"
	"igparser/pkg/logger"
)

var fixedNow = time.UnixMilli(1718020800123)

func newTestSink(t *testing.T, captureOnSuccess bool) (*Sink, string, *logger.TestLogger) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "logs")
	tl := logger.NewTestLogger()
	s := NewSink(config.DiagnosticsConfig{Directory: dir, CaptureOnSuccess: captureOnSuccess}, tl).
		WithClock(func() time.Time { return fixedNow })
	return s, dir, tl
}

func loadedPage(url, html string) *browser.MockPage {
	page := browser.NewMockPage()
	page.AddDocument(url, &browser.MockDocument{HTML: html})
	page.SetURL(url)
	return page
}

func TestSaveDebugInfo(t *testing.T) {
	s, dir, _ := newTestSink(t, true)
	page := loadedPage("https://www.instagram.com/brand/", "<html><body>brand</body></html>")

	res := s.SaveDebugInfo(context.Background(), page, 7, "https://www.instagram.com/brand/")

	assert.Empty(t, res.Warnings)
	require.Len(t, res.Paths, 2)

	png := filepath.Join(dir, fmt.Sprintf("account-7-%d.png", fixedNow.UnixMilli()))
	html := filepath.Join(dir, fmt.Sprintf("account-7-%d.html", fixedNow.UnixMilli()))
	assert.Equal(t, []string{png, html}, res.Paths)

	content, err := os.ReadFile(html)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>brand</body></html>", string(content))

	_, err = os.Stat(png)
	assert.NoError(t, err)
	assert.Equal(t, 2, s.Written())
	assert.Equal(t, 1, page.Screenshots())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()), "no temporary files left behind")
	}
}

func TestSaveDebugInfoDisabled(t *testing.T) {
	s, dir, _ := newTestSink(t, false)
	page := loadedPage("https://www.instagram.com/brand/", "<html></html>")

	res := s.SaveDebugInfo(context.Background(), page, 7, "https://www.instagram.com/brand/")

	assert.Empty(t, res.Paths)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 0, page.Screenshots())
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveDebugInfoScreenshotFailure(t *testing.T) {
	s, _, tl := newTestSink(t, true)
	page := loadedPage("https://www.instagram.com/brand/", "<html></html>")
	page.ScreenshotErr = fmt.Errorf("target closed")

	res := s.SaveDebugInfo(context.Background(), page, 7, "https://www.instagram.com/brand/")

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "debug_screenshot", res.Warnings[0].Operation)
	assert.Contains(t, res.Warnings[0].Message, "target closed")
	assert.Len(t, res.Paths, 1, "html is still written")
	assert.True(t, tl.HasMessage("Diagnostics capture failed"))
}

func TestSaveErrorScreenshot(t *testing.T) {
	s, dir, _ := newTestSink(t, false)
	page := loadedPage("https://www.instagram.com/broken/", "<html></html>")

	res := s.SaveErrorScreenshot(context.Background(), page, 12)

	assert.Empty(t, res.Warnings)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, filepath.Join(dir, fmt.Sprintf("error-12-%d.png", fixedNow.UnixMilli())), res.Paths[0])
}

func TestSaveErrorScreenshotUnwritableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	s := NewSink(config.DiagnosticsConfig{Directory: filepath.Join(blocker, "logs")}, logger.NewNopLogger())
	page := loadedPage("https://www.instagram.com/x/", "<html></html>")

	res := s.SaveErrorScreenshot(context.Background(), page, 1)

	assert.Empty(t, res.Paths)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "error_screenshot", res.Warnings[0].Operation)
	assert.Equal(t, 0, s.Written())
}
