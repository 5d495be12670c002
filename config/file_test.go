package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pevans/archscraper/discovery"
	"github.com/pevans/archscraper/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customSites = `
sites:
  - name: ArchPaper
    base_url: https://www.archpaper.com
    category: news
    discovery_mode: feed
    list_config:
      feed_path: /{category}/feed/
      include_patterns: ['^/\d{4}/\d{2}/[^/]+/?$']
    article_config:
      content_selectors: [".entry-content"]
      date_selectors:
        - selector: time[datetime]
          attr: datetime
`

// TestLoadSiteFile verifies site definitions are read and normalized
func TestLoadSiteFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sites.yaml", customSites)

	sites, err := LoadSiteFile(path)
	require.NoError(t, err)
	require.Contains(t, sites, "archpaper")

	site := sites["archpaper"]
	assert.Equal(t, scraper.ModeFeed, site.DiscoveryMode)
	assert.Equal(t, "https://www.archpaper.com/news/feed/", site.FeedURL(1))
	assert.Equal(t, []scraper.AttrSelector{{Selector: "time[datetime]", Attr: "datetime"}}, site.ArticleConfig.DateSelectors)
}

// TestLoadSiteFile_Errors verifies missing, malformed and invalid files
func TestLoadSiteFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSiteFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadSiteFile(writeFile(t, dir, "bad.yaml", "sites: [unterminated"))
	assert.Error(t, err)

	_, err = LoadSiteFile(writeFile(t, dir, "invalid.yaml", "sites:\n  - name: x\n    base_url: not-a-url\n"))
	assert.Error(t, err)

	dup := "sites:\n" +
		"  - {name: a, base_url: 'https://a.example', discovery_mode: feed, list_config: {feed_path: /feed/}, article_config: {content_selectors: [article]}}\n" +
		"  - {name: A, base_url: 'https://a.example', discovery_mode: feed, list_config: {feed_path: /feed/}, article_config: {content_selectors: [article]}}\n"
	_, err = LoadSiteFile(writeFile(t, dir, "dup.yaml", dup))
	assert.Error(t, err)
}

// TestMarshalSites verifies dumped sites can be loaded back as a sites file
func TestMarshalSites(t *testing.T) {
	out, err := MarshalSites(discovery.DefaultConfigs())
	require.NoError(t, err)
	assert.Contains(t, string(out), "name: dezeen")

	path := filepath.Join(t.TempDir(), "dump.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o600))

	sites, err := LoadSiteFile(path)
	require.NoError(t, err)
	assert.Equal(t, discovery.DefaultConfigs(), sites)
}

// TestConfig_Registry verifies sites files and overrides shape the registry
func TestConfig_Registry(t *testing.T) {
	off := false
	cfg := &Config{
		SitesFile: writeFile(t, t.TempDir(), "sites.yaml", customSites),
		Sites: map[string]scraper.SiteOverride{
			discovery.Leibal: {Category: "interiors"},
			discovery.Dezeen: {Enabled: &off},
		},
	}

	registry, err := cfg.Registry()
	require.NoError(t, err)

	assert.Equal(t, []string{"archpaper", discovery.Dezeen, discovery.Leibal, discovery.Metropolis}, registry.Names())
	assert.False(t, registry.Enabled(discovery.Dezeen))

	leibal, _ := registry.Config(discovery.Leibal)
	assert.Equal(t, "interiors", leibal.Category)

	cfg.Sites = map[string]scraper.SiteOverride{"unknown": {}}
	_, err = cfg.Registry()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
