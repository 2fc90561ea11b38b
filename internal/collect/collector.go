package collect

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quintessa-dev/Automacao-de-editais/internal/errbus"
	"github.com/quintessa-dev/Automacao-de-editais/internal/models"
	"github.com/quintessa-dev/Automacao-de-editais/internal/providers"
)

// Store is the persistence surface the collector needs.
type Store interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	AppendItems(ctx context.Context, items []models.Item) (int, error)
	UpdateItemLink(ctx context.Context, uid, link string) error
	ReadConfig(ctx context.Context) (map[string]string, error)
	AppendLog(ctx context.Context, level, msg string)
}

// Collector runs all configured providers and persists what passes the
// filters.
type Collector struct {
	Store    Store
	Registry *providers.Registry
	Now      func() time.Time // overridable in tests
}

func NewCollector(st Store, reg *providers.Registry) *Collector {
	return &Collector{Store: st, Registry: reg, Now: time.Now}
}

// ProviderStat is the per-source outcome of one run.
type ProviderStat struct {
	Group   string `json:"group"`
	Source  string `json:"source"`
	Fetched int    `json:"itens_fetch"`
	Kept    int    `json:"itens_pos_prazo"`
	Error   string `json:"error,omitempty"`
}

// RunResult summarizes one collection.
type RunResult struct {
	RunID      string         `json:"run_id"`
	FixedLinks int            `json:"fixed_links"`
	NewItems   int            `json:"new_items"`
	Stats      []ProviderStat `json:"provider_stats"`
}

// Run executes one collection pass. Providers run in registry order; a
// failing provider is reported on the bus and never aborts the others. The
// context is checked between providers so cancellation takes effect at the
// next source boundary. A positive minDays overrides the configured window
// for this run only.
func (c *Collector) Run(ctx context.Context, bus *errbus.Bus, groups []string, minDays int) (*RunResult, error) {
	runID := uuid.New().String()[:8]
	now := c.Now().UTC()

	cfg, err := c.Store.ReadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if minDays <= 0 {
		minDays = MinDaysDefault
		if v, err := strconv.Atoi(strings.TrimSpace(cfg["MIN_DAYS"])); err == nil {
			minDays = v
		}
	}

	existing, err := c.Store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	result := &RunResult{RunID: runID, Stats: []ProviderStat{}}
	result.FixedLinks = c.repairLinks(ctx, bus, existing)

	known := make(map[string]bool, len(existing))
	for _, it := range existing {
		known[it.UID] = true
	}

	provs, err := c.Registry.Providers()
	if err != nil {
		return nil, fmt.Errorf("building providers: %w", err)
	}

	var batch []models.Item
	for _, p := range provs {
		src := p.Source()
		if !groupWanted(src.Group, groups) {
			continue
		}
		if err := ctx.Err(); err != nil {
			bus.Pushf("collect", "cancelled before %s: %v", src.Name, err)
			break
		}

		stat := ProviderStat{Group: src.Group, Source: src.Name}
		key := RegexKey(src.Group)
		crit := providers.Criteria{
			Regex:        CompileGroupRegex(key, cfg[key]),
			GrantsStatus: cfg["GRANTS_STATUS"],
		}

		raws, err := p.Fetch(ctx, crit)
		if err != nil {
			stat.Error = err.Error()
			bus.Push("provider:"+src.Name, err)
		}
		stat.Fetched = len(raws)

		for _, raw := range raws {
			it := c.toItem(src, raw, now)
			if !WithinMinDays(it.DeadlineAt, minDays, now) {
				continue
			}
			if known[it.UID] {
				continue
			}
			known[it.UID] = true
			batch = append(batch, it)
			stat.Kept++
		}
		result.Stats = append(result.Stats, stat)
	}

	inserted, err := c.Store.AppendItems(ctx, batch)
	if err != nil {
		bus.Push("store.append", err)
	}
	result.NewItems = inserted

	summary := fmt.Sprintf("run %s: fixed_links=%d new_items=%d sources=%d errors=%d",
		runID, result.FixedLinks, result.NewItems, len(result.Stats), bus.Len())
	log.Printf("[collect] %s", summary)
	c.Store.AppendLog(ctx, "INFO", summary)

	return result, nil
}

// toItem normalizes one raw listing entry into a stored item.
func (c *Collector) toItem(src providers.SourceConfig, raw providers.RawItem, now time.Time) models.Item {
	title := strings.TrimSpace(raw.Title)
	link := strings.TrimSpace(raw.Link)

	it := models.Item{
		UID:         models.UID(src.Group, src.Name, title, link),
		Group:       src.Group,
		Source:      src.Name,
		Title:       title,
		Link:        link,
		PublishedAt: raw.PublishedAt,
		Agency:      raw.Agency,
		Region:      raw.Region,
		CreatedAt:   now,
		Status:      models.StatusPending,
	}
	if it.Agency == "" {
		it.Agency = src.Agency
	}
	if it.Region == "" {
		it.Region = src.Region
	}
	if raw.Summary != "" || len(raw.Extra) > 0 {
		it.Raw = map[string]interface{}{}
		if raw.Summary != "" {
			it.Raw["summary"] = raw.Summary
		}
		for k, v := range raw.Extra {
			it.Raw[k] = v
		}
	}

	if raw.DeadlineRaw != "" {
		if t, err := ParseDeadline(raw.DeadlineRaw); err == nil {
			it.DeadlineAt = &t
		} else if t := DeadlineFromText(raw.DeadlineRaw); !t.IsZero() {
			it.DeadlineAt = &t
		}
	}
	return it
}

// repairLinks absolutizes stored links that lack a scheme, using the base
// URL the registry knows for each source. BNDES rows are the usual case:
// the portal emits root-relative hrefs.
func (c *Collector) repairLinks(ctx context.Context, bus *errbus.Bus, items []models.Item) int {
	bases := c.Registry.BaseURLs()
	fixed := 0
	for _, it := range items {
		if it.Link == "" || strings.HasPrefix(it.Link, "http://") || strings.HasPrefix(it.Link, "https://") {
			continue
		}
		base, ok := bases[it.Source]
		if !ok {
			continue
		}
		repaired := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(it.Link, "/")
		if err := c.Store.UpdateItemLink(ctx, it.UID, repaired); err != nil {
			bus.Push("fix_links", err)
			continue
		}
		fixed++
	}
	return fixed
}

func groupWanted(group string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if SameGroup(group, w) {
			return true
		}
	}
	return false
}
