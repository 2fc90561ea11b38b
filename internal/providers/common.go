package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var httpClient = &http.Client{Timeout: 30 * time.Second}

// fetchDocument GETs a URL and parses the body as HTML.
func fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// absoluteURL resolves href against base when href is relative.
func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// containsAny reports whether s contains at least one keyword,
// case-insensitively. An empty keyword list matches everything.
func containsAny(s string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	sLower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(sLower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// pageTextSnippet fetches a detail page and returns the start of its visible
// text. The snippet is handed downstream as deadline evidence; extraction
// happens with the shared date parser.
func pageTextSnippet(ctx context.Context, pageURL string, maxLen int) string {
	doc, err := fetchDocument(ctx, pageURL)
	if err != nil {
		return ""
	}
	doc.Find("script, style, nav, footer").Remove()
	text := normalizeSpace(doc.Find("body").Text())
	if len(text) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
