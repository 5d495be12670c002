// Package scraper holds the per-site selector configuration that drives the
// site adapters.
package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Discovery modes.
const (
	ModeList = "list" // listing pages
	ModeFeed = "feed" // RSS feed
)

// SiteConfig defines how to discover and extract articles from one magazine.
type SiteConfig struct {
	Name          string        `json:"name" yaml:"name" mapstructure:"name"`
	BaseURL       string        `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	Category      string        `json:"category,omitempty" yaml:"category,omitempty" mapstructure:"category"`
	DiscoveryMode string        `json:"discovery_mode" yaml:"discovery_mode" mapstructure:"discovery_mode"` // "list" or "feed"
	ListConfig    ListConfig    `json:"list_config" yaml:"list_config" mapstructure:"list_config"`
	ArticleConfig ArticleConfig `json:"article_config" yaml:"article_config" mapstructure:"article_config"`
}

// ListConfig defines how to discover article links. Paths and patterns may
// contain {category} and {page} placeholders.
type ListConfig struct {
	FirstPagePath   string   `json:"first_page_path" yaml:"first_page_path" mapstructure:"first_page_path"`
	PagePath        string   `json:"page_path" yaml:"page_path" mapstructure:"page_path"`
	FeedPath        string   `json:"feed_path,omitempty" yaml:"feed_path,omitempty" mapstructure:"feed_path"`
	LinkSelector    string   `json:"link_selector" yaml:"link_selector" mapstructure:"link_selector"`
	TitleSelectors  []string `json:"title_selectors,omitempty" yaml:"title_selectors,omitempty" mapstructure:"title_selectors"`
	IncludePatterns []string `json:"include_patterns,omitempty" yaml:"include_patterns,omitempty" mapstructure:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty" mapstructure:"exclude_patterns"`
}

// AttrSelector selects an element and reads an attribute from it. An empty
// Attr reads the element text.
type AttrSelector struct {
	Selector string `json:"selector" yaml:"selector" mapstructure:"selector"`
	Attr     string `json:"attr,omitempty" yaml:"attr,omitempty" mapstructure:"attr"`
}

// ArticleConfig defines how to extract an article page. Selector lists are
// tried in order and the first match wins.
type ArticleConfig struct {
	ContentSelectors   []string       `json:"content_selectors" yaml:"content_selectors" mapstructure:"content_selectors"`
	TitleSelectors     []string       `json:"title_selectors,omitempty" yaml:"title_selectors,omitempty" mapstructure:"title_selectors"`
	AuthorSelectors    []string       `json:"author_selectors,omitempty" yaml:"author_selectors,omitempty" mapstructure:"author_selectors"`
	DefaultAuthor      string         `json:"default_author,omitempty" yaml:"default_author,omitempty" mapstructure:"default_author"`
	DateSelectors      []AttrSelector `json:"date_selectors,omitempty" yaml:"date_selectors,omitempty" mapstructure:"date_selectors"`
	TagSelectors       []AttrSelector `json:"tag_selectors,omitempty" yaml:"tag_selectors,omitempty" mapstructure:"tag_selectors"`
	MainImageSelectors []AttrSelector `json:"main_image_selectors,omitempty" yaml:"main_image_selectors,omitempty" mapstructure:"main_image_selectors"`
}

// Validate reports configuration that can never produce an article.
func (c *SiteConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("site name is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("site %s: base_url must be an absolute http(s) URL", c.Name)
	}
	switch c.DiscoveryMode {
	case ModeList:
		if c.ListConfig.LinkSelector == "" || c.ListConfig.FirstPagePath == "" {
			return fmt.Errorf("site %s: list mode needs link_selector and first_page_path", c.Name)
		}
	case ModeFeed:
		if c.ListConfig.FeedPath == "" {
			return fmt.Errorf("site %s: feed mode needs feed_path", c.Name)
		}
	default:
		return fmt.Errorf("site %s: discovery_mode must be %q or %q", c.Name, ModeList, ModeFeed)
	}
	if len(c.ArticleConfig.ContentSelectors) == 0 {
		return fmt.Errorf("site %s: at least one content selector is required", c.Name)
	}
	return nil
}

// Host returns the host of BaseURL without a leading "www.".
func (c *SiteConfig) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ListURL returns the listing page URL for page (1-based).
func (c *SiteConfig) ListURL(page int) string {
	path := c.ListConfig.FirstPagePath
	if page > 1 && c.ListConfig.PagePath != "" {
		path = c.ListConfig.PagePath
	}
	return c.resolve(c.Expand(path, page))
}

// FeedURL returns the feed URL for page (1-based), using WordPress' paged
// parameter past the first page.
func (c *SiteConfig) FeedURL(page int) string {
	feed := c.resolve(c.Expand(c.ListConfig.FeedPath, page))
	if page <= 1 {
		return feed
	}
	u, err := url.Parse(feed)
	if err != nil {
		return feed
	}
	q := u.Query()
	q.Set("paged", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Expand substitutes the {category} and {page} placeholders in s.
func (c *SiteConfig) Expand(s string, page int) string {
	return strings.NewReplacer(
		"{category}", c.Category,
		"{page}", strconv.Itoa(page),
	).Replace(s)
}

func (c *SiteConfig) resolve(ref string) string {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
