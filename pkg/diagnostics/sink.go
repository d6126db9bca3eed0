package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"igparser/pkg/browser"
	"igparser/pkg/config"
	"igparser/pkg/errors"
	"igparser/pkg/logger"
	"igparser/pkg/models"
)

// Result lists the files written by one capture and the steps that failed
type Result struct {
	Paths    []string
	Warnings []models.Warning
}

// Sink writes screenshots and page HTML for post-mortem inspection.
// Every write is best effort: failures come back as warnings.
type Sink struct {
	dir              string
	captureOnSuccess bool
	logger           logger.Logger
	now              func() time.Time

	mu      sync.Mutex
	written int
}

// NewSink creates a Sink writing into cfg.Directory. The directory is
// created on first write.
func NewSink(cfg config.DiagnosticsConfig, log logger.Logger) *Sink {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Sink{
		dir:              cfg.Directory,
		captureOnSuccess: cfg.CaptureOnSuccess,
		logger:           log.WithField("component", "diagnostics"),
		now:              time.Now,
	}
}

// WithClock replaces the time source used in file names
func (s *Sink) WithClock(now func() time.Time) *Sink {
	s.now = now
	return s
}

// Dir returns the output directory
func (s *Sink) Dir() string {
	return s.dir
}

// Written returns the number of files written so far
func (s *Sink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// SaveDebugInfo stores a full page screenshot and the HTML of the loaded
// profile. It does nothing when success captures are disabled.
func (s *Sink) SaveDebugInfo(ctx context.Context, page browser.Page, accountID int64, url string) Result {
	var res Result
	if !s.captureOnSuccess {
		return res
	}

	base := fmt.Sprintf("account-%d-%d", accountID, s.now().UnixMilli())

	if png, err := page.Screenshot(ctx, true); err != nil {
		res.warn("debug_screenshot", err)
	} else if path, err := s.write(base+".png", png); err != nil {
		res.warn("debug_screenshot", err)
	} else {
		res.Paths = append(res.Paths, path)
	}

	if html, err := page.HTML(ctx); err != nil {
		res.warn("debug_html", err)
	} else if path, err := s.write(base+".html", []byte(html)); err != nil {
		res.warn("debug_html", err)
	} else {
		res.Paths = append(res.Paths, path)
	}

	s.log(res, map[string]interface{}{"account_id": accountID, "url": url})
	return res
}

// SaveErrorScreenshot stores a viewport screenshot after a failed account
func (s *Sink) SaveErrorScreenshot(ctx context.Context, page browser.Page, accountID int64) Result {
	var res Result

	name := fmt.Sprintf("error-%d-%d.png", accountID, s.now().UnixMilli())
	if png, err := page.Screenshot(ctx, false); err != nil {
		res.warn("error_screenshot", err)
	} else if path, err := s.write(name, png); err != nil {
		res.warn("error_screenshot", err)
	} else {
		res.Paths = append(res.Paths, path)
	}

	s.log(res, map[string]interface{}{"account_id": accountID})
	return res
}

// write saves data under name via a temporary file and rename
func (s *Sink) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", errors.Wrap(errors.ErrorTypeDiagnostics, "create_dir", err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(errors.ErrorTypeDiagnostics, "write_file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(errors.ErrorTypeDiagnostics, "rename_file", err)
	}

	s.mu.Lock()
	s.written++
	s.mu.Unlock()
	return path, nil
}

func (s *Sink) log(res Result, fields map[string]interface{}) {
	for _, w := range res.Warnings {
		s.logger.WarnWithFields("Diagnostics capture failed", map[string]interface{}{
			"operation": w.Operation,
			"error":     w.Message,
		})
	}
	if len(res.Paths) > 0 {
		fields["files"] = res.Paths
		s.logger.DebugWithFields("Diagnostics saved", fields)
	}
}

func (r *Result) warn(op string, err error) {
	r.Warnings = append(r.Warnings, models.NewWarning(op, err))
}
