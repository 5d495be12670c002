// Package discovery finds articles on magazine sites and scrapes them into
// article records. Each site is an Adapter built from a scraper.SiteConfig.
package discovery

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/archscraper/article"
	"github.com/pevans/archscraper/fetcher"
)

var (
	// ErrContentNotFound means no content selector matched the page.
	ErrContentNotFound = errors.New("article content not found")
	// ErrInvalidArticle means the scraped article failed validation.
	ErrInvalidArticle = errors.New("invalid article")
	// ErrUnknownSite is returned by the registry for unconfigured names.
	ErrUnknownSite = errors.New("unknown site")
)

// Listing is an article link found on a listing page or feed.
type Listing struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Adapter discovers and scrapes the articles of one site.
type Adapter interface {
	// Name is the stable source name, e.g. "leibal".
	Name() string
	// BaseURL is the site's home URL.
	BaseURL() string
	// ListArticles returns the article links on listing page (1-based),
	// deduplicated and in page order.
	ListArticles(ctx context.Context, page int) ([]Listing, error)
	// ScrapeArticle fetches and assembles one article.
	ScrapeArticle(ctx context.Context, entry Listing) (*article.Article, error)
}

// PageFetcher retrieves raw pages and parsed documents.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error)
	FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error)
}
