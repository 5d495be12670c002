// Package store persists articles and sources in PostgreSQL or SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pevans/archscraper/article"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connection pool defaults for PostgreSQL.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

var (
	ErrArticleNotFound   = errors.New("article not found")
	ErrSourceNotFound    = errors.New("source not found")
	ErrMissingDSN        = errors.New("database DSN is not configured")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Outcome is the result of an upsert.
type Outcome string

const (
	Inserted  Outcome = "inserted"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// Gateway is the persistence boundary used by the orchestrator and API.
type Gateway interface {
	UpsertArticle(ctx context.Context, a *article.Article) (Outcome, error)
	GetArticleByURL(ctx context.Context, url string) (*StoredArticle, error)
	LastScrapedAt(ctx context.Context, url string) (time.Time, bool, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]StoredArticle, error)
	EnsureSource(ctx context.Context, name, baseURL string) (*Source, error)
	GetSourceByName(ctx context.Context, name string) (*Source, error)
	ListSources(ctx context.Context) ([]Source, error)
	MarkSourceScraped(ctx context.Context, id string, at time.Time) error
	Close() error
}

// Config describes the database connection.
type Config struct {
	Driver  string
	DSN     string
	Migrate bool
}

// Store is a sqlx-backed Gateway.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Gateway = (*Store)(nil)

// Open connects to the configured database, verifies the connection and
// optionally creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, ErrMissingDSN
	}

	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = sqlx.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	case DriverSQLite:
		db, err = sqlx.Open(DriverSQLite, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db)
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return s, nil
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a duplicate-key error from either
// driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return true
	}

	return false
}
