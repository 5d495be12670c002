package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/pevans/archscraper/discovery"
	"github.com/pevans/archscraper/scraper"
	"gopkg.in/yaml.v3"
)

// SiteFile is the layout of a sites file.
type SiteFile struct {
	Sites []scraper.SiteConfig `yaml:"sites"`
}

// LoadSiteFile reads full site definitions from a YAML file. Every site is
// validated.
func LoadSiteFile(path string) (map[string]scraper.SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}

	var file SiteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sites file: %w", err)
	}

	sites := make(map[string]scraper.SiteConfig, len(file.Sites))
	for _, site := range file.Sites {
		site.Name = strings.ToLower(strings.TrimSpace(site.Name))
		if err := site.Validate(); err != nil {
			return nil, fmt.Errorf("sites file %s: %w", path, err)
		}
		if _, dup := sites[site.Name]; dup {
			return nil, fmt.Errorf("sites file %s: site %s defined twice", path, site.Name)
		}
		sites[site.Name] = site
	}

	return sites, nil
}

// MarshalSites renders site definitions as a sites file, ordered by name.
func MarshalSites(sites map[string]scraper.SiteConfig) ([]byte, error) {
	file := SiteFile{Sites: make([]scraper.SiteConfig, 0, len(sites))}
	for _, site := range sites {
		file.Sites = append(file.Sites, site)
	}
	slices.SortFunc(file.Sites, func(a, b scraper.SiteConfig) int {
		return strings.Compare(a.Name, b.Name)
	})

	return yaml.Marshal(&file)
}

// Registry returns the effective site registry: the built-in sites, replaced
// or extended by the sites file, then adjusted by per-site overrides.
func (c *Config) Registry() (*discovery.Registry, error) {
	sites := discovery.DefaultConfigs()
	if c.SitesFile != "" {
		fromFile, err := LoadSiteFile(c.SitesFile)
		if err != nil {
			return nil, err
		}
		for name, site := range fromFile {
			sites[name] = site
		}
	}

	registry := discovery.NewRegistry(sites)
	if err := registry.ApplyOverrides(c.Sites); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return registry, nil
}
