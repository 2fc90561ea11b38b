package collect

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quintessa-dev/Automacao-de-editais/internal/errbus"
	"github.com/quintessa-dev/Automacao-de-editais/internal/models"
	"github.com/quintessa-dev/Automacao-de-editais/internal/providers"
)

// fakeStore is an in-memory Store with the same append semantics as the
// real one: an existing uid is silently skipped.
type fakeStore struct {
	items []models.Item
	cfg   map[string]string
	logs  []string
	links map[string]string // uid -> repaired link
}

func newFakeStore() *fakeStore {
	return &fakeStore{cfg: map[string]string{}, links: map[string]string{}}
}

func (f *fakeStore) ListItems(ctx context.Context) ([]models.Item, error) {
	out := make([]models.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeStore) AppendItems(ctx context.Context, items []models.Item) (int, error) {
	inserted := 0
	for _, it := range items {
		exists := false
		for _, have := range f.items {
			if have.UID == it.UID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		f.items = append(f.items, it)
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) UpdateItemLink(ctx context.Context, uid, link string) error {
	f.links[uid] = link
	return nil
}

func (f *fakeStore) ReadConfig(ctx context.Context) (map[string]string, error) {
	return f.cfg, nil
}

func (f *fakeStore) AppendLog(ctx context.Context, level, msg string) {
	f.logs = append(f.logs, msg)
}

// staticProvider serves canned results, keyed by source ID.
var staticResults map[string]struct {
	items []providers.RawItem
	err   error
}

type staticProvider struct{ cfg providers.SourceConfig }

func (p *staticProvider) Source() providers.SourceConfig { return p.cfg }

func (p *staticProvider) Fetch(ctx context.Context, crit providers.Criteria) ([]providers.RawItem, error) {
	r := staticResults[p.cfg.ID]
	var kept []providers.RawItem
	for _, it := range r.items {
		if crit.Regex != nil && !crit.Regex.MatchString(it.Title) {
			continue
		}
		kept = append(kept, it)
	}
	return kept, r.err
}

func init() {
	providers.GlobalStrategyFactory.Register("static_test", func(cfg providers.SourceConfig) (providers.Provider, error) {
		return &staticProvider{cfg: cfg}, nil
	})
}

func testRegistry(sources ...providers.SourceConfig) *providers.Registry {
	return &providers.Registry{Sources: sources}
}

func staticSource(id, name, group string) providers.SourceConfig {
	return providers.SourceConfig{
		ID: id, Name: name, Group: group,
		Strategy: "static_test", Enabled: true,
	}
}

func testCollector(st Store, reg *providers.Registry) *Collector {
	c := NewCollector(st, reg)
	c.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func futureDate(c *Collector, days int) string {
	return c.Now().AddDate(0, 0, days).Format("2006-01-02")
}

func TestCollectorInsertsAndIsIdempotent(t *testing.T) {
	st := newFakeStore()
	reg := testRegistry(staticSource("phil", "Fundação X", GroupPhil))
	c := testCollector(st, reg)

	staticResults = map[string]struct {
		items []providers.RawItem
		err   error
	}{
		"phil": {items: []providers.RawItem{
			{Title: "Climate grants for health science", Link: "https://x.org/a", DeadlineRaw: futureDate(c, 90)},
			{Title: "Climate innovation call", Link: "https://x.org/b", DeadlineRaw: futureDate(c, 40)},
		}},
	}

	bus := errbus.New()
	result, err := c.Run(context.Background(), bus, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewItems != 2 {
		t.Fatalf("first run inserted %d, want 2", result.NewItems)
	}

	// Same inputs again: nothing new.
	result, err = c.Run(context.Background(), errbus.New(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewItems != 0 {
		t.Errorf("second run inserted %d, want 0", result.NewItems)
	}
	if len(st.items) != 2 {
		t.Errorf("store has %d items, want 2", len(st.items))
	}
}

func TestCollectorMinDaysFilter(t *testing.T) {
	st := newFakeStore()
	st.cfg["MIN_DAYS"] = "21"
	reg := testRegistry(staticSource("phil", "Fundação X", GroupPhil))
	c := testCollector(st, reg)

	staticResults = map[string]struct {
		items []providers.RawItem
		err   error
	}{
		"phil": {items: []providers.RawItem{
			{Title: "Climate call closing soon", Link: "https://x.org/soon", DeadlineRaw: futureDate(c, 5)},
			{Title: "Climate call with time", Link: "https://x.org/far", DeadlineRaw: futureDate(c, 60)},
			{Title: "Climate call rolling basis", Link: "https://x.org/rolling", DeadlineRaw: "rolling basis"},
		}},
	}

	result, err := c.Run(context.Background(), errbus.New(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	// The near deadline is dropped; the far one and the unparsable one stay.
	if result.NewItems != 2 {
		t.Fatalf("inserted %d, want 2", result.NewItems)
	}
	for _, it := range st.items {
		if strings.Contains(it.Link, "soon") {
			t.Error("item inside the minDays window should have been dropped")
		}
		if strings.Contains(it.Link, "rolling") && it.DeadlineAt != nil {
			t.Error("unparsable deadline should stay unknown")
		}
	}
}

func TestCollectorMinDaysOverride(t *testing.T) {
	st := newFakeStore()
	st.cfg["MIN_DAYS"] = "21"
	reg := testRegistry(staticSource("phil", "Fundação X", GroupPhil))
	c := testCollector(st, reg)

	staticResults = map[string]struct {
		items []providers.RawItem
		err   error
	}{
		"phil": {items: []providers.RawItem{
			{Title: "Climate call in a month", Link: "https://x.org/month", DeadlineRaw: futureDate(c, 30)},
			{Title: "Climate call next quarter", Link: "https://x.org/quarter", DeadlineRaw: futureDate(c, 90)},
		}},
	}

	result, err := c.Run(context.Background(), errbus.New(), nil, 70)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewItems != 1 {
		t.Fatalf("inserted %d, want 1 with the widened window", result.NewItems)
	}
	if !strings.Contains(st.items[0].Link, "quarter") {
		t.Errorf("kept %q, want the far deadline only", st.items[0].Link)
	}
}

func TestCollectorPartialFailureIsolation(t *testing.T) {
	st := newFakeStore()
	reg := testRegistry(
		staticSource("broken", "Fonte Quebrada", GroupGov),
		staticSource("phil", "Fundação X", GroupPhil),
	)
	c := testCollector(st, reg)

	staticResults = map[string]struct {
		items []providers.RawItem
		err   error
	}{
		"broken": {err: errors.New("connection refused")},
		"phil": {items: []providers.RawItem{
			{Title: "Climate grants", Link: "https://x.org/a", DeadlineRaw: futureDate(c, 90)},
		}},
	}

	bus := errbus.New()
	result, err := c.Run(context.Background(), bus, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewItems != 1 {
		t.Errorf("inserted %d, want 1 despite the broken source", result.NewItems)
	}
	if bus.Len() == 0 {
		t.Error("expected the failure on the bus")
	}

	var brokenStat *ProviderStat
	for i := range result.Stats {
		if result.Stats[i].Source == "Fonte Quebrada" {
			brokenStat = &result.Stats[i]
		}
	}
	if brokenStat == nil || brokenStat.Error == "" {
		t.Error("expected an error in the broken source's stats row")
	}
}

func TestCollectorGroupRestriction(t *testing.T) {
	st := newFakeStore()
	reg := testRegistry(
		staticSource("gov", "Gov Fonte", GroupGov),
		staticSource("phil", "Fundação X", GroupPhil),
	)
	c := testCollector(st, reg)

	staticResults = map[string]struct {
		items []providers.RawItem
		err   error
	}{
		"gov": {items: []providers.RawItem{
			{Title: "Forest innovation fund", Link: "https://gov.example/a", DeadlineRaw: futureDate(c, 90)},
		}},
		"phil": {items: []providers.RawItem{
			{Title: "Climate grants", Link: "https://x.org/a", DeadlineRaw: futureDate(c, 90)},
		}},
	}

	result, err := c.Run(context.Background(), errbus.New(), []string{"filantropia"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewItems != 1 {
		t.Fatalf("inserted %d, want 1", result.NewItems)
	}
	if st.items[0].Group != GroupPhil {
		t.Errorf("collected from group %q, want %q", st.items[0].Group, GroupPhil)
	}
	if len(result.Stats) != 1 {
		t.Errorf("stats for %d sources, want 1", len(result.Stats))
	}
}

func TestCollectorRepairsRelativeLinks(t *testing.T) {
	st := newFakeStore()
	st.items = []models.Item{
		{UID: "u1", Source: "BNDES", Link: "/wps/portal/chamada?1dmy"},
		{UID: "u2", Source: "BNDES", Link: "https://www.bndes.gov.br/ok"},
	}
	src := staticSource("bndes", "BNDES", GroupLatam)
	src.BaseURL = "https://www.bndes.gov.br"
	c := testCollector(st, testRegistry(src))

	staticResults = map[string]struct {
		items []providers.RawItem
		err   error
	}{"bndes": {}}

	result, err := c.Run(context.Background(), errbus.New(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.FixedLinks != 1 {
		t.Fatalf("fixed %d links, want 1", result.FixedLinks)
	}
	want := "https://www.bndes.gov.br/wps/portal/chamada?1dmy"
	if st.links["u1"] != want {
		t.Errorf("repaired link = %q, want %q", st.links["u1"], want)
	}
	if _, touched := st.links["u2"]; touched {
		t.Error("absolute link must not be rewritten")
	}
}

func TestDiagnoseIsReadOnlyAndTimed(t *testing.T) {
	reg := testRegistry(
		staticSource("phil", "Fundação X", GroupPhil),
		staticSource("broken", "Fonte Quebrada", GroupGov),
	)

	staticResults = map[string]struct {
		items []providers.RawItem
		err   error
	}{
		"phil":   {items: []providers.RawItem{{Title: "Climate grants", Link: "https://x.org/a"}}},
		"broken": {err: errors.New("i/o timeout")},
	}

	rows := Diagnose(context.Background(), reg, map[string]string{}, nil)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, row := range rows {
		switch row.Source {
		case "Fundação X":
			if row.Items != 1 || row.Error != "" {
				t.Errorf("healthy source row: %+v", row)
			}
		case "Fonte Quebrada":
			if row.Error == "" {
				t.Error("expected an error for the broken source")
			}
			if row.Hint == "" {
				t.Error("expected a hint for the timeout")
			}
		}
	}
}
