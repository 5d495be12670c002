// Package config loads archscraper settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pevans/archscraper/fetcher"
	"github.com/pevans/archscraper/ingest"
	"github.com/pevans/archscraper/logger"
	"github.com/pevans/archscraper/scraper"
	"github.com/pevans/archscraper/store"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ARCHSCRAPER_LOG_LEVEL.
const EnvPrefix = "ARCHSCRAPER"

// Defaults.
const (
	DefaultSQLitePath        = "archscraper.db"
	DefaultRequestsPerMinute = 10
	DefaultServerAddr        = ":8080"
	DefaultCron              = "*/30 * * * *"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Log       logger.Config  `mapstructure:"log" yaml:"log"`
	Database  DatabaseConfig `mapstructure:"database" yaml:"database"`
	Scraper   ScraperConfig  `mapstructure:"scraper" yaml:"scraper"`
	Server    ServerConfig   `mapstructure:"server" yaml:"server"`
	Schedule  ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	SitesFile string         `mapstructure:"sites_file" yaml:"sites_file,omitempty"`

	// Sites holds per-site overrides keyed by site name.
	Sites map[string]scraper.SiteOverride `mapstructure:"-" yaml:"sites,omitempty"`
}

// DatabaseConfig selects the store.
type DatabaseConfig struct {
	Driver  string `mapstructure:"driver" yaml:"driver"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	Migrate bool   `mapstructure:"migrate" yaml:"migrate"`
}

// ScraperConfig controls fetching and runs.
type ScraperConfig struct {
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	BackoffBase       time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	Pages             int           `mapstructure:"pages" yaml:"pages"`
	FreshnessWindow   time.Duration `mapstructure:"freshness_window" yaml:"freshness_window"`
	PublishedFallback string        `mapstructure:"published_fallback" yaml:"published_fallback"`
	BlockedResources  []string      `mapstructure:"blocked_resources" yaml:"blocked_resources"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// ScheduleConfig configures recurring runs.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

// Load reads configuration. An empty path searches for archscraper.yaml in
// the working directory and ./config; a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("archscraper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	sites, err := decodeSites(v.GetStringMap("sites"))
	if err != nil {
		return nil, err
	}
	cfg.Sites = sites

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", logger.DefaultLevel)
	v.SetDefault("log.format", logger.DefaultFormat)
	v.SetDefault("log.development", false)
	v.SetDefault("log.output_paths", []string{"stderr"})

	v.SetDefault("database.driver", store.DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate", true)

	v.SetDefault("scraper.user_agent", fetcher.DefaultUserAgent)
	v.SetDefault("scraper.timeout", fetcher.DefaultTimeout)
	v.SetDefault("scraper.max_attempts", fetcher.DefaultMaxAttempts)
	v.SetDefault("scraper.retry_delay", fetcher.DefaultRetryDelay)
	v.SetDefault("scraper.backoff_base", fetcher.DefaultBackoffBase)
	v.SetDefault("scraper.requests_per_minute", DefaultRequestsPerMinute)
	v.SetDefault("scraper.concurrency", ingest.DefaultConcurrency)
	v.SetDefault("scraper.pages", ingest.DefaultPages)
	v.SetDefault("scraper.freshness_window", ingest.DefaultFreshnessWindow)
	v.SetDefault("scraper.published_fallback", ingest.FallbackNone)
	v.SetDefault("scraper.blocked_resources", fetcher.DefaultBlockedResources)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("schedule.cron", DefaultCron)
	v.SetDefault("sites_file", "")
}

// bindEnv adds the unprefixed database variables used by hosted Postgres
// providers.
func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("database.dsn", EnvPrefix+"_DATABASE_DSN", "DATABASE_DSN", "DATABASE_URL"); err != nil {
		return fmt.Errorf("failed to bind database DSN: %w", err)
	}
	if err := v.BindEnv("database.driver", EnvPrefix+"_DATABASE_DRIVER", "DATABASE_DRIVER"); err != nil {
		return fmt.Errorf("failed to bind database driver: %w", err)
	}
	return nil
}

// decodeSites decodes the sites section into overrides. Unknown keys are
// rejected.
func decodeSites(raw map[string]any) (map[string]scraper.SiteOverride, error) {
	sites := make(map[string]scraper.SiteOverride, len(raw))
	for name, section := range raw {
		var o scraper.SiteOverride
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &o,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(section); err != nil {
			return nil, fmt.Errorf("failed to decode sites.%s: %w", name, err)
		}
		sites[strings.ToLower(name)] = o
	}
	return sites, nil
}

// Validate reports settings that would make every run fail.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverSQLite:
	case store.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for %s (set DATABASE_URL)", ErrInvalidConfig, store.DriverPostgres)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	s := c.Scraper
	if s.Pages < 1 {
		return fmt.Errorf("%w: scraper.pages must be at least 1", ErrInvalidConfig)
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("%w: scraper.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("%w: scraper.concurrency must be at least 1", ErrInvalidConfig)
	}
	if s.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: scraper.requests_per_minute must not be negative", ErrInvalidConfig)
	}
	if !slices.Contains([]string{ingest.FallbackNone, ingest.FallbackFetchTime}, s.PublishedFallback) {
		return fmt.Errorf("%w: scraper.published_fallback must be %q or %q",
			ErrInvalidConfig, ingest.FallbackNone, ingest.FallbackFetchTime)
	}

	for name, o := range c.Sites {
		if o.DiscoveryMode != "" && o.DiscoveryMode != scraper.ModeList && o.DiscoveryMode != scraper.ModeFeed {
			return fmt.Errorf("%w: sites.%s.discovery_mode must be %q or %q",
				ErrInvalidConfig, name, scraper.ModeList, scraper.ModeFeed)
		}
	}

	return nil
}

// StoreConfig returns the store settings, defaulting the SQLite path.
func (c *Config) StoreConfig() store.Config {
	dsn := c.Database.DSN
	if dsn == "" && c.Database.Driver == store.DriverSQLite {
		dsn = DefaultSQLitePath
	}
	return store.Config{
		Driver:  c.Database.Driver,
		DSN:     dsn,
		Migrate: c.Database.Migrate,
	}
}

// FetcherConfig returns the fetcher settings.
func (c *Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		UserAgent:        c.Scraper.UserAgent,
		Timeout:          c.Scraper.Timeout,
		MaxAttempts:      c.Scraper.MaxAttempts,
		RetryDelay:       c.Scraper.RetryDelay,
		BackoffBase:      c.Scraper.BackoffBase,
		BlockedResources: c.Scraper.BlockedResources,
	}
}

// IngestConfig returns the orchestrator settings.
func (c *Config) IngestConfig() ingest.Config {
	return ingest.Config{
		FreshnessWindow:   c.Scraper.FreshnessWindow,
		PublishedFallback: c.Scraper.PublishedFallback,
		Concurrency:       c.Scraper.Concurrency,
		Pages:             c.Scraper.Pages,
	}
}
