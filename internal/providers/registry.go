package providers

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all watched sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadRegistry reads the embedded sources.yaml, with a filesystem fallback
// for local development when path is set.
func LoadRegistry(path string) (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Providers builds a Provider per enabled source, in registry order.
func (r *Registry) Providers() ([]Provider, error) {
	var out []Provider
	for _, cfg := range r.Sources {
		if !cfg.Enabled {
			continue
		}
		p, err := GlobalStrategyFactory.Build(cfg)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Groups returns the distinct group names in registry order.
func (r *Registry) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, cfg := range r.Sources {
		if !cfg.Enabled || seen[cfg.Group] {
			continue
		}
		seen[cfg.Group] = true
		out = append(out, cfg.Group)
	}
	return out
}

// BaseURLs maps source name to its known base URL, for repairing relative
// links that earlier runs may have stored.
func (r *Registry) BaseURLs() map[string]string {
	out := make(map[string]string)
	for _, cfg := range r.Sources {
		if cfg.BaseURL != "" {
			out[cfg.Name] = cfg.BaseURL
		}
	}
	return out
}
