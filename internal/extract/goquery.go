// Package extract evaluates CSS selector rules against HTML documents.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/favicon-resolver/internal/icon"
)

// Goquery implements icon.Extractor with goquery.
type Goquery struct{}

// NewGoquery returns a goquery-backed extractor.
func NewGoquery() *Goquery {
	return &Goquery{}
}

// Extract parses html once and returns, for each rule in order, the value of
// the rule's attribute on every matching element in document order.
// Elements without the attribute are skipped.
func (Goquery) Extract(html string, rules []icon.Rule) ([]icon.Match, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var matches []icon.Match
	for _, rule := range rules {
		doc.Find(rule.Selector).Each(func(_ int, sel *goquery.Selection) {
			value, ok := sel.Attr(rule.Attribute)
			if !ok {
				return
			}
			matches = append(matches, icon.Match{Type: rule.Type, Value: strings.TrimSpace(value)})
		})
	}
	return matches, nil
}
