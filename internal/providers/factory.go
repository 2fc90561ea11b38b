package providers

import "fmt"

// Builder constructs a Provider from its registry entry.
type Builder func(cfg SourceConfig) (Provider, error)

// StrategyFactory maps strategy IDs (from sources.yaml) to builders.
type StrategyFactory struct {
	builders map[string]Builder
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{builders: make(map[string]Builder)}
}

func (f *StrategyFactory) Register(id string, b Builder) {
	f.builders[id] = b
}

func (f *StrategyFactory) Build(cfg SourceConfig) (Provider, error) {
	b, ok := f.builders[cfg.Strategy]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", cfg.Strategy)
	}
	return b(cfg)
}

// Global factory instance
var GlobalStrategyFactory = NewStrategyFactory()

func init() {
	GlobalStrategyFactory.Register("grants_gov_api", NewGrantsGovProvider)
	GlobalStrategyFactory.Register("rss_feed", NewRSSProvider)
	GlobalStrategyFactory.Register("html_links", NewHTMLLinksProvider)
	GlobalStrategyFactory.Register("bndes_portal", NewBNDESProvider)
	GlobalStrategyFactory.Register("finep_calls", NewFinepProvider)
}
