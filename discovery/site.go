package discovery

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/archscraper/article"
	"github.com/pevans/archscraper/content"
	"github.com/pevans/archscraper/dates"
	"github.com/pevans/archscraper/logger"
	"github.com/pevans/archscraper/scraper"
)

// Site is a selector-driven Adapter.
type Site struct {
	cfg     scraper.SiteConfig
	fetcher PageFetcher
	log     logger.Logger
	include []*regexp.Regexp
	exclude []*regexp.Regexp

	now func() time.Time
}

// NewSite validates cfg and builds an adapter for it.
func NewSite(cfg scraper.SiteConfig, f PageFetcher, log logger.Logger) (*Site, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	include, err := compilePatterns(&cfg, cfg.ListConfig.IncludePatterns)
	if err != nil {
		return nil, err
	}
	exclude, err := compilePatterns(&cfg, cfg.ListConfig.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	return &Site{
		cfg:     cfg,
		fetcher: f,
		log:     log.With(logger.String("source", cfg.Name)),
		include: include,
		exclude: exclude,
		now:     time.Now,
	}, nil
}

func compilePatterns(cfg *scraper.SiteConfig, patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(cfg.Expand(p, 0))
		if err != nil {
			return nil, fmt.Errorf("site %s: invalid link pattern %q: %w", cfg.Name, p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// Name returns the site name.
func (s *Site) Name() string { return s.cfg.Name }

// BaseURL returns the site's home URL.
func (s *Site) BaseURL() string { return s.cfg.BaseURL }

// Config returns the site's configuration.
func (s *Site) Config() scraper.SiteConfig { return s.cfg }

// ListArticles returns the article links of a listing page.
func (s *Site) ListArticles(ctx context.Context, page int) ([]Listing, error) {
	if page < 1 {
		page = 1
	}
	if s.cfg.DiscoveryMode == scraper.ModeFeed {
		return s.listFeed(ctx, page)
	}

	listURL := s.cfg.ListURL(page)
	doc, err := s.fetcher.FetchDocument(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page %d: %w", page, err)
	}

	listings := s.extractListings(doc, listURL)
	s.log.Debug("Listing page parsed",
		logger.String("url", listURL),
		logger.Int("articles", len(listings)),
	)
	return listings, nil
}

// extractListings collects article links in document order, keeping the
// first occurrence of each URL.
func (s *Site) extractListings(doc *goquery.Document, pageURL string) []Listing {
	base := doc.Url
	if base == nil {
		base, _ = url.Parse(pageURL)
	}

	listings := []Listing{}
	seen := make(map[string]struct{})

	doc.Find(s.cfg.ListConfig.LinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link, ok := s.articleLink(base, href)
		if !ok {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		listings = append(listings, Listing{URL: link, Title: s.listingTitle(a)})
	})

	return listings
}

func (s *Site) listingTitle(a *goquery.Selection) string {
	if title := cleanText(a.Text()); title != "" {
		return title
	}
	if title := cleanText(a.AttrOr("title", "")); title != "" {
		return title
	}

	container := a.Closest("article")
	if container.Length() == 0 {
		container = a.Parent()
	}
	for _, sel := range s.cfg.ListConfig.TitleSelectors {
		if title := cleanText(container.Find(sel).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

// articleLink resolves href against base and reports whether it points at
// an article of this site.
func (s *Site) articleLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	u.Fragment = ""

	if !s.allows(u) {
		return "", false
	}
	return u.String(), true
}

// allows applies the host, include and exclude rules to u.
func (s *Site) allows(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !sameHost(u.Hostname(), s.cfg.Host()) {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, re := range s.exclude {
		if re.MatchString(path) {
			return false
		}
	}
	if len(s.include) == 0 {
		return path != "/"
	}
	for _, re := range s.include {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// ScrapeArticle fetches entry and assembles it into an article.
func (s *Site) ScrapeArticle(ctx context.Context, entry Listing) (*article.Article, error) {
	doc, err := s.fetcher.FetchDocument(ctx, entry.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article: %w", err)
	}

	return s.parseArticle(doc, entry)
}

func (s *Site) parseArticle(doc *goquery.Document, entry Listing) (*article.Article, error) {
	cfg := s.cfg.ArticleConfig
	base := doc.Url
	if base == nil {
		base, _ = url.Parse(entry.URL)
	}

	root := firstMatch(doc.Selection, cfg.ContentSelectors)
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, entry.URL)
	}

	original, err := root.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to read content HTML: %w", err)
	}

	blocks := content.Extract(root)
	for i := range blocks {
		if blocks[i].Kind == content.KindImage {
			blocks[i].Content = absoluteURL(base, blocks[i].Content)
		}
	}

	meta := article.Meta{
		URL:             entry.URL,
		Title:           s.title(doc, entry),
		MetaDescription: metaContent(doc, `meta[name="description"]`, `meta[property="og:description"]`),
		Author:          s.author(doc),
		PublishedAt:     s.publishedAt(doc),
		Tags:            s.tags(doc),
		Category:        s.cfg.Category,
		OriginalContent: strings.TrimSpace(original),
	}

	a := article.Assemble(meta, blocks, s.mainImage(doc, base, blocks))
	if err := ValidateArticle(&a, s.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArticle, err)
	}

	return &a, nil
}

func (s *Site) title(doc *goquery.Document, entry Listing) string {
	for _, sel := range s.cfg.ArticleConfig.TitleSelectors {
		if t := cleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	if entry.Title != "" {
		return entry.Title
	}
	if t := metaContent(doc, `meta[property="og:title"]`); t != "" {
		return t
	}
	return cleanText(doc.Find("title").First().Text())
}

func (s *Site) author(doc *goquery.Document) string {
	for _, sel := range s.cfg.ArticleConfig.AuthorSelectors {
		if a := cleanText(doc.Find(sel).First().Text()); a != "" {
			return a
		}
	}
	if a := metaContent(doc, `meta[name="author"]`); a != "" {
		return a
	}
	return s.cfg.ArticleConfig.DefaultAuthor
}

// publishedAt returns the first plausible normalizable date, or nil. Dates
// before 1990 or more than a day ahead are discarded and the next selector
// is tried.
func (s *Site) publishedAt(doc *goquery.Document) *time.Time {
	selectors := slices.Concat(s.cfg.ArticleConfig.DateSelectors, []scraper.AttrSelector{
		{Selector: `meta[property="article:published_time"]`, Attr: "content"},
	})

	for _, sel := range selectors {
		var found *time.Time
		doc.Find(sel.Selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			t, ok := dates.Normalize(readAttr(el, sel.Attr))
			if !ok {
				return true
			}
			found = &t
			return false
		})
		if found == nil {
			continue
		}
		if !PlausibleDate(*found, s.now()) {
			s.log.Debug("Discarding implausible published date", logger.Time("published_at", *found))
			continue
		}
		return found
	}
	return nil
}

func (s *Site) tags(doc *goquery.Document) []string {
	selectors := slices.Concat(s.cfg.ArticleConfig.TagSelectors, []scraper.AttrSelector{
		{Selector: `meta[property="article:tag"]`, Attr: "content"},
	})

	var tags []string
	for _, sel := range selectors {
		doc.Find(sel.Selector).Each(func(_ int, el *goquery.Selection) {
			if tag := cleanText(readAttr(el, sel.Attr)); tag != "" {
				tags = append(tags, tag)
			}
		})
	}
	return tags
}

// mainImage takes the first configured selector that yields a URL, then the
// first image in the content.
func (s *Site) mainImage(doc *goquery.Document, base *url.URL, blocks []content.Block) article.MainImage {
	for _, sel := range s.cfg.ArticleConfig.MainImageSelectors {
		el := doc.Find(sel.Selector).First()
		if el.Length() == 0 {
			continue
		}

		if goquery.NodeName(el) == "img" && (sel.Attr == "" || sel.Attr == "src") {
			img := content.ImageFrom(el)
			if img.Content != "" {
				return article.MainImage{
					URL:     absoluteURL(base, img.Content),
					Alt:     img.Metadata.Alt,
					Caption: img.Metadata.Caption,
				}
			}
			continue
		}

		if src := strings.TrimSpace(readAttr(el, sel.Attr)); src != "" {
			return article.MainImage{
				URL: absoluteURL(base, src),
				Alt: metaContent(doc, `meta[property="og:image:alt"]`),
			}
		}
	}

	for _, b := range blocks {
		if b.Kind == content.KindImage && b.Content != "" {
			return article.MainImage{URL: b.Content, Alt: b.Metadata.Alt, Caption: b.Metadata.Caption}
		}
	}
	return article.MainImage{}
}

func firstMatch(doc *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if m := doc.Find(sel).First(); m.Length() > 0 {
			return m
		}
	}
	return nil
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v := cleanText(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

func readAttr(el *goquery.Selection, attr string) string {
	if attr == "" {
		return el.Text()
	}
	return el.AttrOr(attr, "")
}

func absoluteURL(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

func sameHost(host, siteHost string) bool {
	return strings.TrimPrefix(strings.ToLower(host), "www.") == siteHost
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
