package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gocolly/colly/v2"
)

const (
	ctxStatusKey = "fetcher.status"
	ctxBodyKey   = "fetcher.body"
	ctxURLKey    = "fetcher.url"
)

// collyEngine issues single synchronous requests through a shared
// collector. Responses come back through the per-request colly context.
type collyEngine struct {
	collector *colly.Collector
}

func newCollyEngine(cfg Config) (*collyEngine, error) {
	opts := []colly.CollectorOption{
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	}

	if blocked := blockedResourcePattern(cfg.BlockedResources); blocked != "" {
		re, err := regexp.Compile(blocked)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked resource list: %w", err)
		}
		opts = append(opts, colly.DisallowedURLFilters(re))
	}

	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(cfg.Timeout)

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxStatusKey, r.StatusCode)
		r.Ctx.Put(ctxBodyKey, r.Body)
		r.Ctx.Put(ctxURLKey, r.Request.URL.String())
	})

	return &collyEngine{collector: c}, nil
}

// blockedResourcePattern builds a regexp matching URLs whose path ends in one
// of the given extensions.
func blockedResourcePattern(exts []string) string {
	var quoted []string
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			quoted = append(quoted, regexp.QuoteMeta(ext))
		}
	}
	if len(quoted) == 0 {
		return ""
	}
	return `(?i)\.(` + strings.Join(quoted, "|") + `)(\?.*)?$`
}

func (e *collyEngine) Get(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hdr := http.Header{}
	hdr.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	hdr.Set("Accept-Language", "en-US,en;q=0.9")

	reqCtx := colly.NewContext()
	if err := e.collector.Request(http.MethodGet, rawURL, nil, reqCtx, hdr); err != nil {
		if errors.Is(err, colly.ErrForbiddenURL) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedResource, rawURL)
		}
		return nil, err
	}

	status, ok := reqCtx.GetAny(ctxStatusKey).(int)
	if !ok {
		return nil, fmt.Errorf("no response received for %s", rawURL)
	}
	body, _ := reqCtx.GetAny(ctxBodyKey).([]byte)
	finalURL, _ := reqCtx.GetAny(ctxURLKey).(string)
	if finalURL == "" {
		finalURL = rawURL
	}

	return &Page{URL: finalURL, StatusCode: status, Body: body}, nil
}
