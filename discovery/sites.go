package discovery

import (
	"fmt"
	"maps"
	"slices"

	"github.com/pevans/archscraper/logger"
	"github.com/pevans/archscraper/scraper"
)

// Site names.
const (
	Leibal     = "leibal"
	Dezeen     = "dezeen"
	Metropolis = "metropolis"
)

// commonExcludes drops WordPress archive and navigation pages.
var commonExcludes = []string{
	`^/(category|tag|author|page|search|feed)(/|$)`,
	`/page/\d+/?$`,
	`/feed/?$`,
}

// LeibalConfig returns the configuration for leibal.com. Articles live at
// /<category>/<slug>/.
func LeibalConfig() scraper.SiteConfig {
	return scraper.SiteConfig{
		Name:          Leibal,
		BaseURL:       "https://leibal.com",
		Category:      "architecture",
		DiscoveryMode: scraper.ModeList,
		ListConfig: scraper.ListConfig{
			FirstPagePath:   "/category/{category}/",
			PagePath:        "/category/{category}/page/{page}/",
			FeedPath:        "/category/{category}/feed/",
			LinkSelector:    "article a[href]",
			TitleSelectors:  []string{".entry-title", "h2", "h3"},
			IncludePatterns: []string{`^/{category}/[^/]+/?$`},
			ExcludePatterns: commonExcludes,
		},
		ArticleConfig: scraper.ArticleConfig{
			ContentSelectors: []string{"div.entry-content", "article .entry-content", "article"},
			TitleSelectors:   []string{"h1.entry-title", "article h1", "h1"},
			AuthorSelectors:  []string{".entry-meta a[rel=author]", "a[rel=author]", ".author a"},
			DateSelectors: []scraper.AttrSelector{
				{Selector: "time[datetime]", Attr: "datetime"},
				{Selector: ".entry-date"},
			},
			TagSelectors: []scraper.AttrSelector{{Selector: "a[rel=tag]"}},
			MainImageSelectors: []scraper.AttrSelector{
				{Selector: "img.wp-post-image"},
				{Selector: ".featured-image img"},
				{Selector: `meta[property="og:image"]`, Attr: "content"},
			},
		},
	}
}

// DezeenConfig returns the configuration for dezeen.com. Articles live at
// dated paths, /yyyy/mm/dd/<slug>/.
func DezeenConfig() scraper.SiteConfig {
	return scraper.SiteConfig{
		Name:          Dezeen,
		BaseURL:       "https://www.dezeen.com",
		Category:      "architecture",
		DiscoveryMode: scraper.ModeList,
		ListConfig: scraper.ListConfig{
			FirstPagePath:   "/{category}/",
			PagePath:        "/{category}/page/{page}/",
			FeedPath:        "/{category}/feed/",
			LinkSelector:    ".dezeen-article a[href], .article a[href], article a[href], .post a[href]",
			TitleSelectors:  []string{"h3", "h2", ".article-title"},
			IncludePatterns: []string{`^/\d{4}/\d{2}/\d{2}/[^/]+/?$`},
			ExcludePatterns: append([]string{`(^|/)jobs?(/|$)`}, commonExcludes...),
		},
		ArticleConfig: scraper.ArticleConfig{
			ContentSelectors: []string{
				".entry__content",
				".article__content",
				".post__content",
				".content-area",
				"#main-content",
				".main-content",
				"article .content",
				"[itemprop='articleBody']",
				"article",
			},
			TitleSelectors:  []string{"h1.entry-title", "h1.article__title", "h1"},
			AuthorSelectors: []string{".author-name", "[itemprop='author'] [itemprop='name']", "a[rel=author]", ".byline a"},
			DateSelectors: []scraper.AttrSelector{
				{Selector: "time[datetime]", Attr: "datetime"},
				{Selector: "[itemprop='datePublished']", Attr: "content"},
			},
			TagSelectors: []scraper.AttrSelector{{Selector: ".tags a"}, {Selector: "a[rel=tag]"}},
			MainImageSelectors: []scraper.AttrSelector{
				{Selector: "img.wp-post-image"},
				{Selector: "figure.featured-image img"},
				{Selector: `meta[property="og:image"]`, Attr: "content"},
			},
		},
	}
}

// MetropolisConfig returns the configuration for metropolismag.com. Articles
// live at /<section>/<slug>/.
func MetropolisConfig() scraper.SiteConfig {
	return scraper.SiteConfig{
		Name:          Metropolis,
		BaseURL:       "https://metropolismag.com",
		Category:      "projects",
		DiscoveryMode: scraper.ModeList,
		ListConfig: scraper.ListConfig{
			FirstPagePath:   "/{category}/",
			PagePath:        "/{category}/page/{page}/",
			FeedPath:        "/{category}/feed/",
			LinkSelector:    "article a[href]",
			TitleSelectors:  []string{".entry-title", "h2", "h3"},
			IncludePatterns: []string{`^/[a-z0-9-]+/[a-z0-9-]+/?$`},
			ExcludePatterns: append([]string{`^/(events|subscribe|about|contact|advertise|magazine|product)/`}, commonExcludes...),
		},
		ArticleConfig: scraper.ArticleConfig{
			ContentSelectors: []string{"article .entry-content", ".entry-content", ".article-content", "article"},
			TitleSelectors:   []string{"h1.entry-title", "article h1", "h1"},
			AuthorSelectors:  []string{".author-name", ".byline a", "a[rel=author]"},
			DateSelectors: []scraper.AttrSelector{
				{Selector: "time[datetime]", Attr: "datetime"},
				{Selector: ".entry-date"},
			},
			TagSelectors: []scraper.AttrSelector{{Selector: "a[rel=tag]"}},
			MainImageSelectors: []scraper.AttrSelector{
				{Selector: "img.wp-post-image"},
				{Selector: `meta[property="og:image"]`, Attr: "content"},
			},
		},
	}
}

// DefaultConfigs returns the built-in site configurations keyed by name.
func DefaultConfigs() map[string]scraper.SiteConfig {
	return map[string]scraper.SiteConfig{
		Leibal:     LeibalConfig(),
		Dezeen:     DezeenConfig(),
		Metropolis: MetropolisConfig(),
	}
}

// NewLeibal returns the Leibal adapter.
func NewLeibal(f PageFetcher, log logger.Logger) (*Site, error) {
	return NewSite(LeibalConfig(), f, log)
}

// NewDezeen returns the Dezeen adapter.
func NewDezeen(f PageFetcher, log logger.Logger) (*Site, error) {
	return NewSite(DezeenConfig(), f, log)
}

// NewMetropolis returns the Metropolis adapter.
func NewMetropolis(f PageFetcher, log logger.Logger) (*Site, error) {
	return NewSite(MetropolisConfig(), f, log)
}

// AllSites selects every enabled site.
const AllSites = "all"

// Registry builds adapters by name from a set of site configurations.
type Registry struct {
	configs  map[string]scraper.SiteConfig
	disabled map[string]bool
}

// NewRegistry returns a registry over configs. A nil map means the
// built-in sites.
func NewRegistry(configs map[string]scraper.SiteConfig) *Registry {
	if configs == nil {
		configs = DefaultConfigs()
	}
	return &Registry{configs: maps.Clone(configs), disabled: map[string]bool{}}
}

// ApplyOverrides applies per-site overrides. Overrides for unknown sites
// are an error.
func (r *Registry) ApplyOverrides(overrides map[string]scraper.SiteOverride) error {
	for name, o := range overrides {
		cfg, ok := r.configs[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSite, name)
		}
		cfg = cfg.Apply(o)
		if err := cfg.Validate(); err != nil {
			return err
		}
		r.configs[name] = cfg
		r.disabled[name] = !o.IsEnabled()
	}
	return nil
}

// Names returns the configured site names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.configs))
}

// Enabled reports whether name is selected by "all".
func (r *Registry) Enabled(name string) bool {
	_, ok := r.configs[name]
	return ok && !r.disabled[name]
}

// Config returns the configuration of name.
func (r *Registry) Config(name string) (scraper.SiteConfig, bool) {
	cfg, ok := r.configs[name]
	return cfg, ok
}

// Build returns adapters for names. "all" or no names selects every enabled
// site; disabled sites can still be named explicitly.
func (r *Registry) Build(names []string, f PageFetcher, log logger.Logger) ([]Adapter, error) {
	if len(names) == 0 || slices.Contains(names, AllSites) {
		names = slices.DeleteFunc(r.Names(), func(name string) bool {
			return r.disabled[name]
		})
	}

	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		cfg, ok := r.configs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSite, name)
		}
		site, err := NewSite(cfg, f, log)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, site)
	}
	return adapters, nil
}
