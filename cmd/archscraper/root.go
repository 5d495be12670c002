package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pevans/archscraper/config"
	"github.com/pevans/archscraper/discovery"
	"github.com/pevans/archscraper/fetcher"
	"github.com/pevans/archscraper/ingest"
	"github.com/pevans/archscraper/logger"
	"github.com/pevans/archscraper/metrics"
	"github.com/pevans/archscraper/ratelimit"
	"github.com/pevans/archscraper/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug forces debug logging for all commands.
	debug bool

	rootCmd = &cobra.Command{
		Use:           "archscraper",
		Short:         "Scrape architecture magazines into a database",
		Long:          `Scrapes Leibal, Dezeen and Metropolis articles into PostgreSQL or SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./archscraper.yaml or ./config/archscraper.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newScrapeCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newScheduleCommand())
	rootCmd.AddCommand(newSourcesCommand())
}

// app holds what every command needs.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	registry *discovery.Registry
	prom     *prometheus.Registry
	metrics  *metrics.Metrics
	store    *store.Store
}

// loadApp reads and validates configuration and creates the logger. The
// store is not opened.
func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		prom:     prom,
		metrics:  metrics.New(prom),
	}, nil
}

// openStore connects to the configured database.
func (a *app) openStore(ctx context.Context) error {
	sc := a.cfg.StoreConfig()
	s, err := store.Open(ctx, sc)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", sc.Driver, err)
	}
	a.store = s
	a.log.Debug("Opened store", logger.String("driver", sc.Driver))
	return nil
}

// service builds adapters for names and returns an orchestrator over them.
// defaults, when non-nil, limits what "all" runs.
func (a *app) service(names []string, concurrency int, defaults []string) (*ingest.Service, error) {
	f, err := fetcher.New(a.cfg.FetcherConfig(), ratelimit.New(a.cfg.Scraper.RequestsPerMinute), a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	adapters, err := a.registry.Build(names, f, a.log)
	if err != nil {
		return nil, err
	}

	cfg := a.cfg.IngestConfig()
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	cfg.DefaultSources = defaults
	return ingest.NewService(adapters, a.store, a.log, a.metrics, cfg), nil
}

// apiService builds every configured site. "all" runs the enabled ones;
// disabled sites run only when a request names them.
func (a *app) apiService() (*ingest.Service, error) {
	return a.service(a.registry.Names(), 0, enabledSites(a.registry))
}

// enabledSites returns the enabled site names, never nil.
func enabledSites(r *discovery.Registry) []string {
	names := []string{}
	for _, name := range r.Names() {
		if r.Enabled(name) {
			names = append(names, name)
		}
	}
	return names
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("Failed to close store", logger.Error(err))
		}
	}
	_ = a.log.Sync()
}
