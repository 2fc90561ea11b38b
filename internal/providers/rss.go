package providers

import (
	"context"
	"fmt"
	"log"

	"github.com/mmcdole/gofeed"
)

// RSSProvider reads a funding-opportunity feed (UKRI publishes one per
// listing page) and filters entries by the group regex.
type RSSProvider struct {
	cfg    SourceConfig
	parser *gofeed.Parser
}

func NewRSSProvider(cfg SourceConfig) (Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rss source %s: url is required", cfg.ID)
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &RSSProvider{cfg: cfg, parser: parser}, nil
}

func (p *RSSProvider) Source() SourceConfig { return p.cfg }

func (p *RSSProvider) Fetch(ctx context.Context, crit Criteria) ([]RawItem, error) {
	feed, err := p.parser.ParseURLWithContext(p.cfg.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	log.Printf("[%s] feed has %d entries", p.cfg.Name, len(feed.Items))

	var items []RawItem
	for _, entry := range feed.Items {
		if entry.Title == "" || entry.Link == "" {
			continue
		}
		summary := normalizeSpace(entry.Description)
		if crit.Regex != nil && !crit.Regex.MatchString(entry.Title+" "+summary) {
			continue
		}

		item := RawItem{
			Title:       normalizeSpace(entry.Title),
			Link:        absoluteURL(p.cfg.BaseURL, entry.Link),
			Summary:     summary,
			DeadlineRaw: summary,
			Agency:      p.cfg.Agency,
			Region:      p.cfg.Region,
		}
		if entry.PublishedParsed != nil {
			t := *entry.PublishedParsed
			item.PublishedAt = &t
		}

		// The feed body rarely carries the closing date; the entry page does.
		if snippet := pageTextSnippet(ctx, item.Link, 4000); snippet != "" {
			item.DeadlineRaw = snippet
		}

		items = append(items, item)
	}

	return items, nil
}
