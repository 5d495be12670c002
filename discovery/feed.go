package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/mmcdole/gofeed"
	"github.com/pevans/archscraper/logger"
)

// listFeed reads article links from the site's RSS or Atom feed. The feed is
// fetched through the same rate-limited fetcher as listing pages.
func (s *Site) listFeed(ctx context.Context, page int) ([]Listing, error) {
	feedURL := s.cfg.FeedURL(page)

	p, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed page %d: %w", page, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	base, _ := url.Parse(feedURL)
	listings := []Listing{}
	seen := make(map[string]struct{})
	for _, item := range feed.Items {
		link, ok := s.articleLink(base, item.Link)
		if !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		listings = append(listings, Listing{URL: link, Title: cleanText(item.Title)})
	}

	s.log.Debug("Feed page parsed",
		logger.String("url", feedURL),
		logger.Int("items", len(feed.Items)),
		logger.Int("articles", len(listings)),
	)
	return listings, nil
}
