package discovery

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/archscraper/article"
	"github.com/pevans/archscraper/content"
	"github.com/pevans/archscraper/fetcher"
	"github.com/pevans/archscraper/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned pages keyed by URL
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*fetcher.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	body, ok := f.pages[rawURL]
	f.mu.Unlock()

	if !ok {
		return nil, &fetcher.FetchError{URL: rawURL, StatusCode: 404, Attempts: 3, Err: fetcher.ErrHTTPStatus}
	}
	return &fetcher.Page{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, err
	}
	doc.Url, _ = url.Parse(rawURL)
	return doc, nil
}

const leibalListing = `<html><body>
<nav><a href="/architecture/nav-link/">Nav</a></nav>
<article><a href="https://leibal.com/architecture/casa-a/"><h2 class="entry-title">Casa A</h2></a>
  <a href="https://leibal.com/architecture/casa-a/">Casa A</a></article>
<article><a href="/architecture/casa-b/#comments" title="Casa B"><img src="b.jpg"></a></article>
<article><a href="https://leibal.com/category/architecture/page/2/">Next</a></article>
<article><a href="https://www.leibal.com/architecture/casa-c/">Casa C</a></article>
<article><a href="https://example.com/architecture/elsewhere/">External</a></article>
<article><a href="https://leibal.com/furniture/chair/">Chair</a></article>
<article><a href="mailto:hi@leibal.com">Mail</a></article>
</body></html>`

// TestLeibal_ListArticles verifies filtering, resolution and ordered dedup
func TestLeibal_ListArticles(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://leibal.com/category/architecture/": leibalListing,
	})
	site, err := NewLeibal(f, nil)
	require.NoError(t, err)

	listings, err := site.ListArticles(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []Listing{
		{URL: "https://leibal.com/architecture/casa-a/", Title: "Casa A"},
		{URL: "https://leibal.com/architecture/casa-b/", Title: "Casa B"},
		{URL: "https://www.leibal.com/architecture/casa-c/", Title: "Casa C"},
	}, listings)
}

// TestLeibal_ListArticles_PageURL verifies later pages use the paged path
func TestLeibal_ListArticles_PageURL(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://leibal.com/category/architecture/page/3/": `<article><a href="/architecture/x/">X</a></article>`,
	})
	site, err := NewLeibal(f, nil)
	require.NoError(t, err)

	listings, err := site.ListArticles(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
	assert.Equal(t, []string{"https://leibal.com/category/architecture/page/3/"}, f.calls)
}

// TestListArticles_FetchError verifies listing failures are returned
func TestListArticles_FetchError(t *testing.T) {
	site, err := NewLeibal(newFakeFetcher(nil), nil)
	require.NoError(t, err)

	_, err = site.ListArticles(context.Background(), 1)
	assert.ErrorIs(t, err, fetcher.ErrHTTPStatus)
}

// TestDezeen_ListArticles verifies dated article paths and job link filtering
func TestDezeen_ListArticles(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://www.dezeen.com/architecture/page/2/": `<html><body>
<div class="dezeen-article"><a href="/2024/01/15/tower-house/"><h3>Tower House</h3></a></div>
<article><a href="/2024/01/15/tower-house/">Tower House</a></article>
<article><a href="https://www.dezeenjobs.com/2024/01/15/architect/">Job</a></article>
<article><a href="/jobs/2024/01/15/architect/">Job</a></article>
<article><a href="/architecture/">Architecture</a></article>
<div class="post"><a href="https://www.dezeen.com/2024/01/14/pavilion/">Pavilion</a></div>
</body></html>`,
	})
	site, err := NewDezeen(f, nil)
	require.NoError(t, err)

	listings, err := site.ListArticles(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, []Listing{
		{URL: "https://www.dezeen.com/2024/01/15/tower-house/", Title: "Tower House"},
		{URL: "https://www.dezeen.com/2024/01/14/pavilion/", Title: "Pavilion"},
	}, listings)
}

// TestMetropolis_ListArticles verifies section/slug links are kept
func TestMetropolis_ListArticles(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://metropolismag.com/projects/": `<html><body>
<article><a href="https://metropolismag.com/projects/library-renovation/">Library</a></article>
<article><a href="https://metropolismag.com/projects/">Projects</a></article>
<article><a href="https://metropolismag.com/tag/adaptive-reuse/">Tag</a></article>
<article><a href="https://metropolismag.com/events/summit/">Event</a></article>
<article><a href="https://metropolismag.com/">Home</a></article>
</body></html>`,
	})
	site, err := NewMetropolis(f, nil)
	require.NoError(t, err)

	listings, err := site.ListArticles(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []Listing{
		{URL: "https://metropolismag.com/projects/library-renovation/", Title: "Library"},
	}, listings)
}

const leibalArticle = `<html><head>
<title>Casa A - Leibal</title>
<meta name="description" content="A minimalist courtyard house.">
<meta property="og:image" content="https://leibal.com/og.jpg">
<meta property="article:tag" content="Concrete">
</head><body>
<article>
  <h1 class="entry-title">Casa A</h1>
  <div class="entry-meta"><a rel="author" href="/author/jd/">Jane Doe</a>
    <time datetime="2024-01-15T10:30:00+00:00">January 15, 2024</time></div>
  <img class="wp-post-image" src="/wp-content/uploads/casa-a.jpg" alt="Casa A facade">
  <div class="entry-content">
    <h2>Overview</h2>
    <p>Casa A is a house in Mexico.</p>
    <p>  </p>
    <img src="/wp-content/uploads/roof.jpg" alt="roof">
    <blockquote cite="https://studio.example">Light is a material.</blockquote>
  </div>
  <footer><a rel="tag" href="/tag/concrete/">Concrete</a><a rel="tag" href="/tag/mexico/">Mexico</a></footer>
</article>
</body></html>`

// TestLeibal_ScrapeArticle verifies every field of a complete page
func TestLeibal_ScrapeArticle(t *testing.T) {
	const articleURL = "https://leibal.com/architecture/casa-a/"
	site, err := NewLeibal(newFakeFetcher(map[string]string{articleURL: leibalArticle}), nil)
	require.NoError(t, err)

	a, err := site.ScrapeArticle(context.Background(), Listing{URL: articleURL, Title: "Listing title"})
	require.NoError(t, err)

	assert.Equal(t, articleURL, a.URL)
	assert.Equal(t, "Casa A", a.Title)
	assert.Equal(t, "A minimalist courtyard house.", a.MetaDescription)
	assert.Equal(t, "Jane Doe", a.Author)
	require.NotNil(t, a.PublishedAt)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), *a.PublishedAt)
	assert.Equal(t, []string{"Concrete", "Mexico"}, a.Tags)
	assert.Equal(t, "architecture", a.Category)
	assert.Equal(t, article.MainImage{
		URL: "https://leibal.com/wp-content/uploads/casa-a.jpg",
		Alt: "Casa A facade",
	}, a.MainImage)

	assert.Equal(t, []content.Block{
		content.Header("Overview", 2),
		content.Text("Casa A is a house in Mexico."),
		content.Image("https://leibal.com/wp-content/uploads/roof.jpg", "roof", ""),
		content.Quote("Light is a material.", "https://studio.example"),
	}, a.StructuredContent)
	assert.Equal(t, content.Render(a.StructuredContent), a.ProcessedContent)
	assert.Contains(t, a.OriginalContent, "<h2>Overview</h2>")
}

// TestScrapeArticle_ContentNotFound verifies structural mismatches are
// reported
func TestScrapeArticle_ContentNotFound(t *testing.T) {
	const articleURL = "https://www.dezeen.com/2024/01/15/house/"
	site, err := NewDezeen(newFakeFetcher(map[string]string{
		articleURL: `<html><body><div class="sidebar"><p>Nothing here</p></div></body></html>`,
	}), nil)
	require.NoError(t, err)

	_, err = site.ScrapeArticle(context.Background(), Listing{URL: articleURL})
	assert.ErrorIs(t, err, ErrContentNotFound)
}

// TestScrapeArticle_Fallbacks verifies title, author, date and image
// fallbacks
func TestScrapeArticle_Fallbacks(t *testing.T) {
	const articleURL = "https://www.dezeen.com/2024/01/15/house/"
	site, err := NewDezeen(newFakeFetcher(map[string]string{
		articleURL: `<html><head>
<meta property="og:description" content="OG description">
</head><body>
<div class="entry__content"><p>Text only.</p><figure><img data-src="/img/first.jpg" alt="first"><figcaption>Photo: Studio</figcaption></figure></div>
</body></html>`,
	}), nil)
	require.NoError(t, err)

	a, err := site.ScrapeArticle(context.Background(), Listing{URL: articleURL, Title: "From listing"})
	require.NoError(t, err)

	assert.Equal(t, "From listing", a.Title)
	assert.Equal(t, "OG description", a.MetaDescription)
	assert.Equal(t, article.UnknownAuthor, a.Author)
	assert.Nil(t, a.PublishedAt)
	assert.Equal(t, []string{}, a.Tags)
	assert.Equal(t, article.MainImage{
		URL:     "https://www.dezeen.com/img/first.jpg",
		Alt:     "first",
		Caption: "Photo: Studio",
	}, a.MainImage)
}

// TestScrapeArticle_ImplausibleDate verifies out-of-range dates become
// NotFound
func TestScrapeArticle_ImplausibleDate(t *testing.T) {
	const articleURL = "https://metropolismag.com/projects/old/"
	site, err := NewMetropolis(newFakeFetcher(map[string]string{
		articleURL: `<html><body><article><h1>Old</h1><time datetime="1985-05-01">May 1985</time>
<div class="entry-content"><p>x</p></div></article></body></html>`,
	}), nil)
	require.NoError(t, err)

	a, err := site.ScrapeArticle(context.Background(), Listing{URL: articleURL})
	require.NoError(t, err)
	assert.Nil(t, a.PublishedAt)
}

// TestScrapeArticle_ImplausibleDateFallsThrough verifies a later selector
// supplies the date when an earlier one is out of range
func TestScrapeArticle_ImplausibleDateFallsThrough(t *testing.T) {
	const articleURL = "https://metropolismag.com/projects/reprint/"
	site, err := NewMetropolis(newFakeFetcher(map[string]string{
		articleURL: `<html><head><meta property="article:published_time" content="2024-02-10T08:00:00Z"></head>
<body><article><h1>Reprint</h1><time datetime="1985-05-01">May 1985</time>
<div class="entry-content"><p>x</p></div></article></body></html>`,
	}), nil)
	require.NoError(t, err)

	a, err := site.ScrapeArticle(context.Background(), Listing{URL: articleURL})
	require.NoError(t, err)
	require.NotNil(t, a.PublishedAt)
	assert.Equal(t, time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC), *a.PublishedAt)
}

// TestScrapeArticle_LongFormDate verifies text dates are normalized
func TestScrapeArticle_LongFormDate(t *testing.T) {
	const articleURL = "https://metropolismag.com/projects/new/"
	site, err := NewMetropolis(newFakeFetcher(map[string]string{
		articleURL: `<html><body><article><h1>New</h1><span class="entry-date">March 5, 2024</span>
<div class="entry-content"><p>x</p></div></article></body></html>`,
	}), nil)
	require.NoError(t, err)

	a, err := site.ScrapeArticle(context.Background(), Listing{URL: articleURL})
	require.NoError(t, err)
	require.NotNil(t, a.PublishedAt)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *a.PublishedAt)
}

// TestScrapeArticle_Invalid verifies validation failures are reported
func TestScrapeArticle_Invalid(t *testing.T) {
	const articleURL = "https://leibal.com/architecture/untitled/"
	site, err := NewLeibal(newFakeFetcher(map[string]string{
		articleURL: `<html><body><div class="entry-content"><p>No title anywhere.</p></div></body></html>`,
	}), nil)
	require.NoError(t, err)

	_, err = site.ScrapeArticle(context.Background(), Listing{URL: articleURL})
	assert.ErrorIs(t, err, ErrInvalidArticle)
}

// TestScrapeArticle_FetchError verifies fetch failures propagate
func TestScrapeArticle_FetchError(t *testing.T) {
	site, err := NewLeibal(newFakeFetcher(nil), nil)
	require.NoError(t, err)

	_, err = site.ScrapeArticle(context.Background(), Listing{URL: "https://leibal.com/architecture/gone/"})
	var fetchErr *fetcher.FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

// TestNewSite_InvalidConfig verifies bad configurations are rejected
func TestNewSite_InvalidConfig(t *testing.T) {
	cfg := LeibalConfig()
	cfg.ListConfig.IncludePatterns = []string{"("}
	_, err := NewSite(cfg, newFakeFetcher(nil), nil)
	assert.Error(t, err)

	cfg = LeibalConfig()
	cfg.ArticleConfig.ContentSelectors = nil
	_, err = NewSite(cfg, newFakeFetcher(nil), nil)
	assert.Error(t, err)
}

// TestSiteCategory verifies a different category changes paths and filters
func TestSiteCategory(t *testing.T) {
	cfg := LeibalConfig()
	cfg.Category = "interiors"
	f := newFakeFetcher(map[string]string{
		"https://leibal.com/category/interiors/": `<article><a href="/interiors/loft/">Loft</a><a href="/architecture/house/">House</a></article>`,
	})
	site, err := NewSite(cfg, f, nil)
	require.NoError(t, err)

	listings, err := site.ListArticles(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []Listing{{URL: "https://leibal.com/interiors/loft/", Title: "Loft"}}, listings)
}

// TestRegistry verifies building adapters by name
func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, []string{Dezeen, Leibal, Metropolis}, r.Names())

	all, err := r.Build([]string{"all"}, newFakeFetcher(nil), nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, Dezeen, all[0].Name())

	one, err := r.Build([]string{Metropolis}, newFakeFetcher(nil), nil)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "https://metropolismag.com", one[0].BaseURL())

	_, err = r.Build([]string{"archdaily"}, newFakeFetcher(nil), nil)
	assert.ErrorIs(t, err, ErrUnknownSite)

	cfg, ok := r.Config(Leibal)
	assert.True(t, ok)
	assert.Equal(t, scraper.ModeList, cfg.DiscoveryMode)
}

// TestRegistry_ApplyOverrides verifies configured overrides and disabled sites
func TestRegistry_ApplyOverrides(t *testing.T) {
	r := NewRegistry(nil)
	disabled := false

	err := r.ApplyOverrides(map[string]scraper.SiteOverride{
		Dezeen:     {DiscoveryMode: scraper.ModeFeed},
		Metropolis: {Enabled: &disabled},
	})
	require.NoError(t, err)

	cfg, _ := r.Config(Dezeen)
	assert.Equal(t, scraper.ModeFeed, cfg.DiscoveryMode)
	assert.False(t, r.Enabled(Metropolis))

	all, err := r.Build([]string{AllSites}, newFakeFetcher(nil), nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	named, err := r.Build([]string{Metropolis}, newFakeFetcher(nil), nil)
	require.NoError(t, err)
	assert.Len(t, named, 1)

	// Built-in configurations are not modified.
	assert.Equal(t, scraper.ModeList, DezeenConfig().DiscoveryMode)
}

// TestRegistry_ApplyOverrides_Errors verifies unknown sites and invalid modes
func TestRegistry_ApplyOverrides_Errors(t *testing.T) {
	r := NewRegistry(nil)

	err := r.ApplyOverrides(map[string]scraper.SiteOverride{"archdaily": {}})
	assert.ErrorIs(t, err, ErrUnknownSite)

	err = r.ApplyOverrides(map[string]scraper.SiteOverride{Leibal: {DiscoveryMode: "browser"}})
	assert.Error(t, err)
}
