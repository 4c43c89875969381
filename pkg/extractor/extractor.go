// Package extractor turns raw page HTML into a best-effort readable
// text snippet. It tries a readability pass first and degrades through
// a chain of DOM heuristics, so every page yields something.
package extractor

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/tabsense/tabsense/models"
)

// minReadableLen is the threshold below which a readability result is
// treated as an extraction failure rather than a success.
const minReadableLen = 300

// landmarkSelector matches the usual main-content containers.
const landmarkSelector = `main, article, [role=main], section`

// Extract produces the page's title, readable snippet and URL from raw
// HTML. The fallback chain, first success wins:
//
//  1. readability parse, accepted only above minReadableLen
//  2. first landmark element, else the element with the largest text
//  3. whole-page text
//
// The result is deterministic for a fixed document.
func Extract(html string, pageURL *url.URL) (models.PageInfo, error) {
	info := models.PageInfo{}
	if pageURL != nil {
		info.URL = pageURL.String()
	}

	if article, ok := tryReadability(html, pageURL); ok {
		info.Title = article.Title
		info.Snippet = strings.TrimSpace(article.TextContent)
		if info.Title == "" {
			info.Title = documentTitle(html)
		}
		return info, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return info, fmt.Errorf("failed to parse HTML: %w", err)
	}

	info.Title = strings.TrimSpace(doc.Find("title").First().Text())

	// Script and style text would dominate the length heuristics.
	doc.Find("script, style, noscript, template").Remove()

	node := doc.Find(landmarkSelector).First()
	if node.Length() == 0 {
		node = largestTextBlock(doc)
	}
	if node == nil || node.Length() == 0 {
		node = doc.Find("body").First()
	}

	text := ""
	if node != nil && node.Length() > 0 {
		text = node.Text()
	}
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	info.Snippet = strings.TrimSpace(text)
	return info, nil
}

func tryReadability(html string, pageURL *url.URL) (readability.Article, bool) {
	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(html), pageURL)
	if err != nil {
		return readability.Article{}, false
	}
	if utf8.RuneCountInString(strings.TrimSpace(article.TextContent)) <= minReadableLen {
		return readability.Article{}, false
	}
	return article, true
}

// largestTextBlock walks every element under body and returns the one
// with the single largest rendered text length. Ties go to the first
// element in document order.
func largestTextBlock(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestLen := 0

	doc.Find("body *").Each(func(i int, s *goquery.Selection) {
		n := utf8.RuneCountInString(s.Text())
		if n > bestLen {
			bestLen = n
			best = s
		}
	})

	return best
}

func documentTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// Normalize collapses all whitespace runs, including newlines and
// tabs, into single spaces and trims the result.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
