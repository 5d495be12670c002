package scraper

import "slices"

// SiteOverride adjusts a built-in site from configuration. Zero fields leave
// the site's value in place.
type SiteOverride struct {
	Enabled          *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Category         string   `json:"category,omitempty" yaml:"category,omitempty" mapstructure:"category"`
	DiscoveryMode    string   `json:"discovery_mode,omitempty" yaml:"discovery_mode,omitempty" mapstructure:"discovery_mode"`
	LinkSelector     string   `json:"link_selector,omitempty" yaml:"link_selector,omitempty" mapstructure:"link_selector"`
	ContentSelectors []string `json:"content_selectors,omitempty" yaml:"content_selectors,omitempty" mapstructure:"content_selectors"`
}

// IsEnabled reports whether the override leaves the site enabled.
func (o SiteOverride) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

// Apply returns a copy of c with o applied.
func (c SiteConfig) Apply(o SiteOverride) SiteConfig {
	if o.Category != "" {
		c.Category = o.Category
	}
	if o.DiscoveryMode != "" {
		c.DiscoveryMode = o.DiscoveryMode
	}
	if o.LinkSelector != "" {
		c.ListConfig.LinkSelector = o.LinkSelector
	}
	if len(o.ContentSelectors) > 0 {
		c.ArticleConfig.ContentSelectors = slices.Clone(o.ContentSelectors)
	}
	return c
}
