package extractor

import (
	"igparser/pkg/instagram"
)

// FollowerStrategy reads a follower count from a profile page
type FollowerStrategy struct {
	Name    string
	Extract func(doc *Document) (int64, bool)
}

// SelectorStrategy reads the first element matching selector and parses
// its title or text as a count. Non-positive counts are a miss.
func SelectorStrategy(selector string) FollowerStrategy {
	return FollowerStrategy{
		Name: selector,
		Extract: func(doc *Document) (int64, bool) {
			text, ok := firstText(doc, selector)
			if !ok {
				return 0, false
			}
			n := ParseCount(text)
			return n, n > 0
		},
	}
}

// DefaultFollowerStrategies returns one SelectorStrategy per known follower selector
func DefaultFollowerStrategies() []FollowerStrategy {
	strategies := make([]FollowerStrategy, 0, len(instagram.FollowerSelectors))
	for _, sel := range instagram.FollowerSelectors {
		strategies = append(strategies, SelectorStrategy(sel))
	}
	return strategies
}

// ExtractFollowers applies strategies in order and returns the first
// positive count with the strategy name. It returns 0, "" when all miss.
func ExtractFollowers(doc *Document, strategies []FollowerStrategy) (int64, string) {
	for _, s := range strategies {
		if n, ok := s.Extract(doc); ok {
			return n, s.Name
		}
	}
	return 0, ""
}
