package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"igparser/pkg/browser"
	"igparser/pkg/instagram"
)

// Document is a Snapshot with its HTML parsed once for all strategies
type Document struct {
	browser.Snapshot
	DOM *goquery.Document
}

// NewDocument parses the snapshot's HTML
func NewDocument(snap browser.Snapshot) (*Document, error) {
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	return &Document{Snapshot: snap, DOM: dom}, nil
}

// PostLinks returns absolute post and reel URLs in document order, without duplicates
func PostLinks(doc *Document) []string {
	seen := make(map[string]bool)
	var links []string

	doc.DOM.Find(instagram.PostLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !instagram.IsPostURL(href) {
			return
		}
		abs, err := instagram.ResolveURL(doc.URL, href)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})

	return links
}

// firstText reads the title attribute of the first match, else its text
func firstText(doc *Document, selector string) (string, bool) {
	sel := doc.DOM.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	if title, ok := sel.Attr("title"); ok && strings.TrimSpace(title) != "" {
		return title, true
	}
	text := strings.TrimSpace(sel.Text())
	return text, text != ""
}
