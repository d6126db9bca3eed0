package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockDocument is what MockPage serves for one URL
type MockDocument struct {
	HTML        string
	GlobalData  string
	NavigateErr error
	// RedirectTo replaces the current URL after navigation, like a server redirect
	RedirectTo string
}

// MockPage is an in-memory Page for tests. Documents are keyed by URL.
type MockPage struct {
	mu sync.Mutex

	Documents map[string]*MockDocument
	// OnClick runs when Click is called, e.g. to emulate a form submit
	OnClick func(p *MockPage, selector string)

	ScreenshotErr error
	PopupErr      error
	// MissingSelectors makes WaitVisible time out for these selectors
	MissingSelectors map[string]bool

	current  string
	visits   []string
	typed    map[string]string
	clicked  []string
	popups   int
	captured int
}

// NewMockPage creates a MockPage with no documents
func NewMockPage() *MockPage {
	return &MockPage{
		Documents:        map[string]*MockDocument{},
		MissingSelectors: map[string]bool{},
		typed:            map[string]string{},
	}
}

// AddDocument registers the document served at url
func (p *MockPage) AddDocument(url string, doc *MockDocument) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Documents[url] = doc
}

// SetURL moves the page to url without recording a visit
func (p *MockPage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = url
}

func (p *MockPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.visits = append(p.visits, url)
	doc, ok := p.Documents[url]
	if !ok {
		p.current = url
		return nil
	}
	if doc.NavigateErr != nil {
		return doc.NavigateErr
	}
	p.current = url
	if doc.RedirectTo != "" {
		p.current = doc.RedirectTo
	}
	return nil
}

func (p *MockPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.MissingSelectors[selector] {
		return context.DeadlineExceeded
	}
	return ctx.Err()
}

func (p *MockPage) SendKeys(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[selector] += text
	return nil
}

func (p *MockPage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.clicked = append(p.clicked, selector)
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, selector)
	}
	return nil
}

func (p *MockPage) ClickButtonWithText(ctx context.Context, texts []string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PopupErr != nil {
		return false, p.PopupErr
	}
	doc := p.Documents[p.current]
	if doc == nil {
		return false, nil
	}
	for _, t := range texts {
		if strings.Contains(doc.HTML, ">"+t+"<") {
			p.popups++
			return true, nil
		}
	}
	return false, nil
}

func (p *MockPage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *MockPage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if doc := p.Documents[p.current]; doc != nil {
		return doc.HTML, nil
	}
	return "<html><head></head><body></body></html>", nil
}

func (p *MockPage) EvaluateJSON(ctx context.Context, expr string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if doc := p.Documents[p.current]; doc != nil && doc.GlobalData != "" {
		return []byte(doc.GlobalData), nil
	}
	return []byte("null"), nil
}

func (p *MockPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.captured++
	return []byte(fmt.Sprintf("\x89PNG %s", p.current)), nil
}

// Visits returns every URL passed to Navigate, in order
func (p *MockPage) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

// Typed returns the text sent to selector
func (p *MockPage) Typed(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

// Clicked returns the selectors passed to Click
func (p *MockPage) Clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicked...)
}

// PopupsDismissed counts successful ClickButtonWithText calls
func (p *MockPage) PopupsDismissed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.popups
}

// Screenshots counts successful Screenshot calls
func (p *MockPage) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captured
}
