package providers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gocolly/colly/v2"
)

// FinepProvider crawls the FINEP open-calls listing, following the
// "próxima" pagination link up to max_pages.
type FinepProvider struct {
	cfg SourceConfig
}

func NewFinepProvider(cfg SourceConfig) (Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("finep source %s: url is required", cfg.ID)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	return &FinepProvider{cfg: cfg}, nil
}

func (p *FinepProvider) Source() SourceConfig { return p.cfg }

func (p *FinepProvider) Fetch(ctx context.Context, crit Criteria) ([]RawItem, error) {
	c := newCollector(p.cfg.BaseURL)

	pages := 0
	seen := make(map[string]bool)
	var items []RawItem

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		title := normalizeSpace(e.Text)
		if href == "" || !strings.Contains(href, "/chamadas-publicas/chamadapublica/") {
			return
		}
		link := e.Request.AbsoluteURL(href)
		if seen[link] {
			return
		}
		seen[link] = true

		// Listing anchors are sometimes images only, fall back to the slug.
		if title == "" {
			parts := strings.Split(strings.TrimRight(link, "/"), "/")
			title = strings.ReplaceAll(parts[len(parts)-1], "-", " ")
		}
		if crit.Regex != nil && !crit.Regex.MatchString(title) {
			return
		}

		items = append(items, RawItem{
			Title:       title,
			Link:        link,
			DeadlineRaw: normalizeSpace(e.DOM.Parent().Text()),
			Agency:      p.cfg.Agency,
			Region:      p.cfg.Region,
		})
	})

	c.OnHTML("a[rel='next'], .pagination a", func(e *colly.HTMLElement) {
		if pages >= p.cfg.MaxPages {
			return
		}
		label := strings.ToLower(normalizeSpace(e.Text))
		if label != "próxima" && label != "proxima" && label != ">" {
			return
		}
		if err := ctx.Err(); err != nil {
			return
		}
		pages++
		e.Request.Visit(e.Attr("href"))
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("fetch failed (%d): %w", r.StatusCode, err)
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.Visit(p.cfg.URL); err != nil {
		return nil, fmt.Errorf("visit failed: %w", err)
	}
	c.Wait()

	if visitErr != nil && len(items) == 0 {
		return nil, visitErr
	}

	log.Printf("[%s] kept %d calls across %d pages", p.cfg.Name, len(items), pages+1)
	return items, nil
}
