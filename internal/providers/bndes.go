package providers

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// BNDESProvider crawls the BNDES public-calls portal. The portal renders
// listing anchors with WebSphere "?1dmy" state tokens and often emits them
// relative to the site root, so links are kept as-is and repaired later
// against the configured base URL.
type BNDESProvider struct {
	cfg SourceConfig
}

func NewBNDESProvider(cfg SourceConfig) (Provider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bndes source %s: url is required", cfg.ID)
	}
	return &BNDESProvider{cfg: cfg}, nil
}

func (p *BNDESProvider) Source() SourceConfig { return p.cfg }

func (p *BNDESProvider) Fetch(ctx context.Context, crit Criteria) ([]RawItem, error) {
	c := newCollector(p.cfg.BaseURL)

	seen := make(map[string]bool)
	var items []RawItem
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		title := normalizeSpace(e.Text)
		if href == "" || title == "" {
			return
		}

		decoded, err := url.QueryUnescape(href)
		if err != nil {
			decoded = href
		}
		if !strings.Contains(decoded, "?1dmy") || !strings.Contains(decoded, "chamadas-publicas-para-fundos") {
			return
		}
		if crit.Regex != nil && !crit.Regex.MatchString(title) {
			return
		}
		if seen[href] {
			return
		}
		seen[href] = true

		items = append(items, RawItem{
			Title:       title,
			Link:        href, // intentionally unresolved, portal hrefs are root-relative
			DeadlineRaw: normalizeSpace(e.DOM.Parent().Text()),
			Agency:      p.cfg.Agency,
			Region:      p.cfg.Region,
		})
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

	log.Printf("[%s] kept %d calls", p.cfg.Name, len(items))
	return items, nil
}

// newCollector builds a colly collector with the crawl settings shared by
// the Brazilian portal providers.
func newCollector(baseURL string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(userAgent),
		colly.MaxBodySize(10 * 1024 * 1024),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	}
	if baseURL != "" {
		if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
			opts = append(opts, colly.AllowedDomains(u.Host))
		}
	}

	c := colly.NewCollector(opts...)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       1 * time.Second,
		RandomDelay: 500 * time.Millisecond,
	})
	c.SetRequestTimeout(30 * time.Second)
	return c
}
