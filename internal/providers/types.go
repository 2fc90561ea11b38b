package providers

import (
	"context"
	"regexp"
	"time"
)

// Criteria carries the per-run filters a provider may use while fetching.
// The regex is always set; providers that query remote search APIs may also
// honor the status filter.
type Criteria struct {
	Regex        *regexp.Regexp
	GrantsStatus string // opportunity statuses for API-backed sources, e.g. "posted"
}

// RawItem is an untrusted listing entry as a provider saw it. Deadlines come
// back as raw text (a value or a snippet containing one); normalization
// happens downstream so every provider shares one parser.
type RawItem struct {
	Title       string
	Link        string
	Summary     string
	DeadlineRaw string
	PublishedAt *time.Time
	Agency      string
	Region      string
	Extra       map[string]interface{}
}

// Provider fetches listing entries for one configured source.
type Provider interface {
	Source() SourceConfig
	Fetch(ctx context.Context, crit Criteria) ([]RawItem, error)
}

// SourceConfig defines a single source in the registry.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Group    string `yaml:"group"`
	Strategy string `yaml:"strategy"`
	URL      string `yaml:"url"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Agency   string `yaml:"agency,omitempty"`
	Region   string `yaml:"region,omitempty"`
	URLHint  string `yaml:"url_hint,omitempty"` // remediation pointer shown in diagnostics
	Query    string `yaml:"query,omitempty"`    // keyword for API-backed sources

	// For link-scanning strategies
	LinkKeywords  []string `yaml:"link_keywords,omitempty"`
	TitleKeywords []string `yaml:"title_keywords,omitempty"`
	MaxPages      int      `yaml:"max_pages,omitempty"`

	Enabled bool `yaml:"enabled"`
}
