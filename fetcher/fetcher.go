// Package fetcher retrieves magazine pages over HTTP with per-host rate
// limiting and a bounded retry policy.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/archscraper/logger"
	"github.com/pevans/archscraper/ratelimit"
)

// Default fetch settings.
const (
	DefaultUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
	DefaultBackoffBase = time.Second
)

// DefaultBlockedResources are file extensions never requested.
var DefaultBlockedResources = []string{"png", "jpg", "jpeg", "gif", "webp", "svg", "css", "woff", "woff2", "ttf"}

var (
	// ErrRateLimited is returned when the site kept answering 429.
	ErrRateLimited = errors.New("rate limited by remote site")
	// ErrHTTPStatus is returned when the site kept answering a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	// ErrBlockedResource is returned for URLs matching BlockedResources.
	// These are never retried.
	ErrBlockedResource = errors.New("resource type is blocked")
)

// Config controls how pages are fetched.
type Config struct {
	UserAgent        string
	Timeout          time.Duration
	MaxAttempts      int
	RetryDelay       time.Duration // wait after a network error or non-2xx
	BackoffBase      time.Duration // first wait after a 429, doubled each attempt
	BlockedResources []string
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BlockedResources == nil {
		c.BlockedResources = DefaultBlockedResources
	}
}

// Page is a fetched HTTP response.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// FetchError describes a fetch that failed after every attempt.
type FetchError struct {
	URL        string
	StatusCode int // last status seen, 0 for transport failures
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempts: %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// engine performs a single GET without retries.
type engine interface {
	Get(ctx context.Context, rawURL string) (*Page, error)
}

// Fetcher fetches pages through the rate limiter, retrying failures.
type Fetcher struct {
	cfg     Config
	limiter *ratelimit.Limiter
	log     logger.Logger
	engine  engine

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher backed by a colly collector.
func New(cfg Config, limiter *ratelimit.Limiter, log logger.Logger) (*Fetcher, error) {
	cfg.SetDefaults()

	eng, err := newCollyEngine(cfg)
	if err != nil {
		return nil, err
	}

	if limiter == nil {
		limiter = ratelimit.New(0)
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Fetcher{
		cfg:     cfg,
		limiter: limiter,
		log:     log,
		engine:  eng,
		sleep:   sleepContext,
	}, nil
}

// Fetch retrieves rawURL. Every attempt waits for the host's rate limit
// first. A 429 backs off exponentially; any other failure waits RetryDelay.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, &FetchError{URL: rawURL, Attempts: 0, Err: fmt.Errorf("invalid URL: %q", rawURL)}
	}

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err := f.limiter.Acquire(ctx, u.Host); err != nil {
			return nil, err
		}

		page, err := f.engine.Get(ctx, rawURL)
		delay := f.cfg.RetryDelay
		switch {
		case errors.Is(err, ErrBlockedResource):
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Err: err}
		case err != nil:
			lastErr, lastStatus = err, 0
		case page.StatusCode >= 200 && page.StatusCode < 300:
			return page, nil
		case page.StatusCode == http.StatusTooManyRequests:
			lastErr, lastStatus = ErrRateLimited, page.StatusCode
			delay = f.cfg.BackoffBase * time.Duration(1<<(attempt-1))
		default:
			lastErr, lastStatus = ErrHTTPStatus, page.StatusCode
		}

		if attempt == f.cfg.MaxAttempts {
			break
		}

		f.log.Warn("Fetch attempt failed, retrying",
			logger.String("url", rawURL),
			logger.Int("attempt", attempt),
			logger.Int("status", lastStatus),
			logger.Duration("delay", delay),
			logger.Error(lastErr),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &FetchError{
		URL:        rawURL,
		StatusCode: lastStatus,
		Attempts:   f.cfg.MaxAttempts,
		Err:        lastErr,
	}
}

// FetchDocument fetches rawURL and parses it as HTML.
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}

	base, err := url.Parse(page.URL)
	if err == nil {
		doc.Url = base
	}

	return doc, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
