package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source is a scraped magazine.
type Source struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	BaseURL       string     `db:"base_url" json:"base_url"`
	LastScrapedAt *time.Time `db:"last_scraped_at" json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

const sourceColumns = `id, name, base_url, last_scraped_at, created_at`

// GetSourceByName retrieves a source by its unique name.
func (s *Store) GetSourceByName(ctx context.Context, name string) (*Source, error) {
	var src Source
	query := s.db.Rebind(`SELECT ` + sourceColumns + ` FROM sources WHERE name = ?`)

	err := s.db.GetContext(ctx, &src, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}

	return normalizeSource(&src), nil
}

// EnsureSource returns the source called name, creating it if needed. A
// changed base URL is written back.
func (s *Store) EnsureSource(ctx context.Context, name, baseURL string) (*Source, error) {
	src, err := s.GetSourceByName(ctx, name)
	switch {
	case err == nil:
		if src.BaseURL != baseURL {
			query := s.db.Rebind(`UPDATE sources SET base_url = ? WHERE id = ?`)
			if _, err := s.db.ExecContext(ctx, query, baseURL, src.ID); err != nil {
				return nil, fmt.Errorf("failed to update source: %w", err)
			}
			src.BaseURL = baseURL
		}
		return src, nil
	case !errors.Is(err, ErrSourceNotFound):
		return nil, err
	}

	src = &Source{
		ID:        uuid.New().String(),
		Name:      name,
		BaseURL:   baseURL,
		CreatedAt: s.now().UTC(),
	}
	query := s.db.Rebind(`INSERT INTO sources (id, name, base_url, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, src.ID, src.Name, src.BaseURL, src.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			// Created concurrently.
			return s.GetSourceByName(ctx, name)
		}
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}

	return src, nil
}

// ListSources lists all sources by name.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	sources := []Source{}
	if err := s.db.SelectContext(ctx, &sources, `SELECT `+sourceColumns+` FROM sources ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	for i := range sources {
		normalizeSource(&sources[i])
	}
	return sources, nil
}

// MarkSourceScraped records when a full pass over the source finished.
func (s *Store) MarkSourceScraped(ctx context.Context, id string, at time.Time) error {
	query := s.db.Rebind(`UPDATE sources SET last_scraped_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func normalizeSource(src *Source) *Source {
	src.CreatedAt = src.CreatedAt.UTC()
	if src.LastScrapedAt != nil {
		t := src.LastScrapedAt.UTC()
		src.LastScrapedAt = &t
	}
	return src
}
