package providers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLLinksProvider scans one listing page for anchors that look like
// funding calls, keyed by href and title keyword filters from the registry.
type HTMLLinksProvider struct {
	cfg SourceConfig
}

func NewHTMLLinksProvider(cfg SourceConfig) (Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("html source %s: url is required", cfg.ID)
	}
	return &HTMLLinksProvider{cfg: cfg}, nil
}

func (p *HTMLLinksProvider) Source() SourceConfig { return p.cfg }

func (p *HTMLLinksProvider) Fetch(ctx context.Context, crit Criteria) ([]RawItem, error) {
	doc, err := fetchDocument(ctx, p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching listing: %w", err)
	}

	seen := make(map[string]bool)
	var items []RawItem
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		title := normalizeSpace(sel.Text())
		if href == "" || title == "" || len(title) < 8 {
			return
		}
		if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		if !containsAny(href, p.cfg.LinkKeywords) && !containsAny(title, p.cfg.TitleKeywords) {
			return
		}
		if crit.Regex != nil && !crit.Regex.MatchString(title+" "+href) {
			return
		}

		link := absoluteURL(p.cfg.BaseURL, href)
		if seen[link] {
			return
		}
		seen[link] = true

		items = append(items, RawItem{
			Title:  title,
			Link:   link,
			Agency: p.cfg.Agency,
			Region: p.cfg.Region,
		})
	})

	log.Printf("[%s] kept %d links", p.cfg.Name, len(items))

	// Closing dates live on the detail pages.
	for i := range items {
		select {
		case <-ctx.Done():
			return items, ctx.Err()
		default:
		}
		items[i].DeadlineRaw = pageTextSnippet(ctx, items[i].Link, 4000)
	}

	return items, nil
}
