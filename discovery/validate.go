package discovery

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pevans/archscraper/article"
)

// maxTitleLength bounds article titles.
const maxTitleLength = 500

// minPublishedDate is the earliest publication date accepted.
var minPublishedDate = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// ValidateArticle checks a scraped article before it is stored. The article
// URL must be http(s) and on the same site as siteURL, ignoring "www.".
func ValidateArticle(a *article.Article, siteURL string) error {
	if a.Title == "" {
		return fmt.Errorf("title is empty")
	}
	if len(a.Title) > maxTitleLength {
		return fmt.Errorf("title too long (%d characters, max %d)", len(a.Title), maxTitleLength)
	}

	articleURL, err := url.Parse(a.URL)
	if err != nil {
		return fmt.Errorf("invalid article URL: %w", err)
	}
	if articleURL.Scheme != "http" && articleURL.Scheme != "https" {
		return fmt.Errorf("article URL must use http or https scheme")
	}

	site, err := url.Parse(siteURL)
	if err != nil {
		return fmt.Errorf("invalid site URL: %w", err)
	}
	siteHost := strings.TrimPrefix(strings.ToLower(site.Hostname()), "www.")
	if !sameHost(articleURL.Hostname(), siteHost) {
		return fmt.Errorf("article URL domain (%s) does not match site domain (%s)",
			articleURL.Host, site.Host)
	}

	return nil
}

// PlausibleDate reports whether t could be a real publication date: not
// before 1990 and at most a day after now.
func PlausibleDate(t, now time.Time) bool {
	return !t.Before(minPublishedDate) && !t.After(now.Add(24*time.Hour))
}
