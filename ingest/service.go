// Package ingest runs site adapters and persists what they scrape.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pevans/archscraper/discovery"
	"github.com/pevans/archscraper/logger"
	"github.com/pevans/archscraper/metrics"
	"github.com/pevans/archscraper/store"
)

// Published date fallbacks for articles without a date.
const (
	FallbackNone      = "none"
	FallbackFetchTime = "fetch_time"
)

// Defaults.
const (
	DefaultFreshnessWindow = 7 * 24 * time.Hour
	DefaultPages           = 1
	DefaultConcurrency     = 1
)

// ErrUnknownSource is returned when a run names a source without an adapter.
var ErrUnknownSource = errors.New("unknown source")

// Config controls a run.
type Config struct {
	// URLs stored within this window are not fetched again.
	FreshnessWindow time.Duration `mapstructure:"freshness_window" yaml:"freshness_window"`
	// PublishedFallback is FallbackNone or FallbackFetchTime.
	PublishedFallback string `mapstructure:"published_fallback" yaml:"published_fallback"`
	// Concurrency above 1 scrapes that many articles of a page at once.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// Pages is the default number of listing pages per source.
	Pages int `mapstructure:"pages" yaml:"pages"`
	// DefaultSources names the adapters run by "all" or an empty selection;
	// the others run only when named. Nil means every adapter.
	DefaultSources []string `mapstructure:"-" yaml:"-"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = DefaultFreshnessWindow
	}
	if c.PublishedFallback == "" {
		c.PublishedFallback = FallbackNone
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Pages <= 0 {
		c.Pages = DefaultPages
	}
}

// RunOptions selects what a run scrapes.
type RunOptions struct {
	// Sources names the adapters to run; empty or "all" runs every one.
	Sources []string
	// Pages overrides Config.Pages when positive.
	Pages int
}

// Service scrapes sources through their adapters into the store.
type Service struct {
	adapters []discovery.Adapter
	store    store.Gateway
	log      logger.Logger
	metrics  *metrics.Metrics
	cfg      Config

	now func() time.Time
}

// NewService returns a Service. m may be nil.
func NewService(
	adapters []discovery.Adapter,
	gw store.Gateway,
	log logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	cfg.SetDefaults()

	return &Service{
		adapters: adapters,
		store:    gw,
		log:      log,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Sources returns the names of the configured adapters.
func (s *Service) Sources() []string {
	names := make([]string, 0, len(s.adapters))
	for _, a := range s.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Run scrapes the selected sources one after another. Article and listing
// failures are counted in the summary; only store bookkeeping failures and
// context cancellation stop the run. The summary so far is returned with
// the error.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	adapters, err := s.selectAdapters(opts.Sources)
	if err != nil {
		return nil, err
	}

	pages := opts.Pages
	if pages <= 0 {
		pages = s.cfg.Pages
	}

	summary := &Summary{StartedAt: s.now()}
	defer func() {
		summary.Duration = s.now().Sub(summary.StartedAt)
	}()

	for _, a := range adapters {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := s.runSource(ctx, a, pages)
		summary.Sources = append(summary.Sources, result)
		if err != nil {
			return summary, err
		}
	}

	return summary, nil
}

func (s *Service) selectAdapters(names []string) ([]discovery.Adapter, error) {
	if len(names) == 0 || slices.Contains(names, discovery.AllSites) {
		if s.cfg.DefaultSources == nil {
			return s.adapters, nil
		}
		return slices.DeleteFunc(slices.Clone(s.adapters), func(a discovery.Adapter) bool {
			return !slices.Contains(s.cfg.DefaultSources, a.Name())
		}), nil
	}

	selected := make([]discovery.Adapter, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(s.adapters, func(a discovery.Adapter) bool {
			return a.Name() == name
		})
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		selected = append(selected, s.adapters[i])
	}
	return selected, nil
}

// runSource scrapes listing pages 1..pages of one adapter.
func (s *Service) runSource(ctx context.Context, a discovery.Adapter, pages int) (SourceSummary, error) {
	start := s.now()
	log := s.log.With(logger.String("source", a.Name()))
	t := &tally{summary: SourceSummary{Source: a.Name()}}

	finish := func() SourceSummary {
		t.mu.Lock()
		t.summary.Duration = s.now().Sub(start)
		t.mu.Unlock()
		s.metrics.ObserveRun(a.Name(), t.summary.Duration)
		return t.result()
	}

	src, err := s.store.EnsureSource(ctx, a.Name(), a.BaseURL())
	if err != nil {
		err = fmt.Errorf("failed to ensure source %s: %w", a.Name(), err)
		t.fail(err)
		return finish(), err
	}

	log.Info("Scraping source", logger.Int("pages", pages), logger.Int("concurrency", s.cfg.Concurrency))

	seen := newSeenSet()
	listed := 0
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		listings, err := a.ListArticles(ctx, page)
		if err != nil {
			s.metrics.ObserveListingPage(a.Name(), false)
			log.Warn("Failed to list articles", logger.Int("page", page), logger.Error(err))
			t.fail(fmt.Errorf("listing page %d: %w", page, err))
			continue
		}
		s.metrics.ObserveListingPage(a.Name(), true)
		listed++
		log.Debug("Listed articles", logger.Int("page", page), logger.Int("count", len(listings)))

		if s.cfg.Concurrency > 1 {
			s.processConcurrent(ctx, a, src, listings, seen, t, log)
		} else {
			s.processSequential(ctx, a, src, listings, seen, t, log)
		}
	}

	if err := ctx.Err(); err != nil {
		return finish(), err
	}

	// A pass that listed nothing leaves last_scraped_at alone.
	if listed == 0 {
		result := finish()
		log.Warn("No listing page could be read", logger.Int("pages", pages))
		return result, nil
	}

	if err := s.store.MarkSourceScraped(ctx, src.ID, s.now()); err != nil {
		err = fmt.Errorf("failed to mark source %s scraped: %w", a.Name(), err)
		t.fail(err)
		return finish(), err
	}

	result := finish()
	log.Info("Scraped source",
		logger.Int("found", result.Found),
		logger.Int("inserted", result.Inserted),
		logger.Int("updated", result.Updated),
		logger.Int("unchanged", result.Unchanged),
		logger.Int("skipped", result.Skipped),
		logger.Int("failed", result.Failed),
		logger.Duration("duration", result.Duration),
	)

	return result, nil
}

func (s *Service) processSequential(
	ctx context.Context,
	a discovery.Adapter,
	src *store.Source,
	listings []discovery.Listing,
	seen *seenSet,
	t *tally,
	log logger.Logger,
) {
	for _, entry := range listings {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, a, src, entry, seen, t, log)
	}
}

// processConcurrent scrapes listings with at most Concurrency in flight.
// Results arrive in any order. A failing article does not cancel the rest.
func (s *Service) processConcurrent(
	ctx context.Context,
	a discovery.Adapter,
	src *store.Source,
	listings []discovery.Listing,
	seen *seenSet,
	t *tally,
	log logger.Logger,
) {
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

dispatch:
	for _, entry := range listings {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			s.process(ctx, a, src, entry, seen, t, log)
		}()
	}

	wg.Wait()
}

// process handles one listing: skip when seen or fresh, else scrape and
// upsert.
func (s *Service) process(
	ctx context.Context,
	a discovery.Adapter,
	src *store.Source,
	entry discovery.Listing,
	seen *seenSet,
	t *tally,
	log logger.Logger,
) {
	if !seen.Add(entry.URL) {
		return
	}
	t.found()

	outcome, sample, err := s.scrape(ctx, a, src, entry)
	if err != nil {
		log.Warn("Failed to scrape article", logger.String("url", entry.URL), logger.Error(err))
		err = fmt.Errorf("%s: %w", entry.URL, err)
	} else {
		log.Debug("Processed article", logger.String("url", entry.URL), logger.String("outcome", outcome))
	}

	s.metrics.ObserveArticle(a.Name(), outcome)
	t.record(outcome, sample, err)
}

func (s *Service) scrape(
	ctx context.Context,
	a discovery.Adapter,
	src *store.Source,
	entry discovery.Listing,
) (string, *Sample, error) {
	at, ok, err := s.store.LastScrapedAt(ctx, entry.URL)
	if err != nil {
		return OutcomeFailed, nil, err
	}
	if ok && s.now().Sub(at) < s.cfg.FreshnessWindow {
		return OutcomeSkipped, nil, nil
	}

	art, err := a.ScrapeArticle(ctx, entry)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	art.SourceID = src.ID
	if art.PublishedAt == nil && s.cfg.PublishedFallback == FallbackFetchTime {
		fetched := s.now().UTC()
		art.PublishedAt = &fetched
	}

	outcome, err := s.store.UpsertArticle(ctx, art)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	return string(outcome), &Sample{Title: art.Title, URL: art.URL}, nil
}
