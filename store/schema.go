package store

import (
	"context"
	"fmt"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	base_url TEXT NOT NULL,
	last_scraped_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	source_id TEXT REFERENCES sources(id),
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	meta_description TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMP,
	original_content TEXT NOT NULL DEFAULT '',
	transformed_content TEXT NOT NULL DEFAULT '',
	structured_content TEXT NOT NULL DEFAULT '[]',
	tags TEXT NOT NULL DEFAULT '[]',
	image_url TEXT NOT NULL DEFAULT '',
	image_alt TEXT NOT NULL DEFAULT '',
	image_caption TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	is_processed BOOLEAN NOT NULL DEFAULT FALSE,
	content_hash TEXT NOT NULL,
	scraping_status TEXT NOT NULL DEFAULT 'success',
	last_scraped_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sources (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	base_url TEXT NOT NULL,
	last_scraped_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id UUID PRIMARY KEY,
	source_id UUID REFERENCES sources(id),
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	meta_description TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ,
	original_content TEXT NOT NULL DEFAULT '',
	transformed_content TEXT NOT NULL DEFAULT '',
	structured_content JSONB NOT NULL DEFAULT '[]',
	tags JSONB NOT NULL DEFAULT '[]',
	image_url TEXT NOT NULL DEFAULT '',
	image_alt TEXT NOT NULL DEFAULT '',
	image_caption TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	is_processed BOOLEAN NOT NULL DEFAULT FALSE,
	content_hash TEXT NOT NULL,
	scraping_status TEXT NOT NULL DEFAULT 'success',
	last_scraped_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id);
`

// Migrate creates the sources and articles tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	var schema string
	switch s.db.DriverName() {
	case DriverPostgres:
		schema = postgresSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, s.db.DriverName())
	}

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
