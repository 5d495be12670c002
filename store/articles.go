package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/archscraper/article"
	"github.com/pevans/archscraper/content"
)

// Scraping statuses.
const (
	StatusSuccess = "success"
)

// StoredArticle is an article as persisted, with bookkeeping columns.
type StoredArticle struct {
	ID string `json:"id"`
	article.Article
	ContentHash    string    `json:"content_hash"`
	ScrapingStatus string    `json:"scraping_status"`
	IsProcessed    bool      `json:"is_processed"`
	LastScrapedAt  time.Time `json:"last_scraped_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ArticleFilter narrows ListArticles.
type ArticleFilter struct {
	Source string
	Limit  int
	Offset int
}

// DefaultListLimit caps ListArticles when no limit is given.
const DefaultListLimit = 50

// articleRow mirrors the articles table.
type articleRow struct {
	ID                 string         `db:"id"`
	SourceID           sql.NullString `db:"source_id"`
	URL                string         `db:"url"`
	Title              string         `db:"title"`
	MetaDescription    string         `db:"meta_description"`
	Author             string         `db:"author"`
	PublishedAt        sql.NullTime   `db:"published_at"`
	OriginalContent    string         `db:"original_content"`
	TransformedContent string         `db:"transformed_content"`
	StructuredContent  string         `db:"structured_content"`
	Tags               string         `db:"tags"`
	ImageURL           string         `db:"image_url"`
	ImageAlt           string         `db:"image_alt"`
	ImageCaption       string         `db:"image_caption"`
	Category           string         `db:"category"`
	IsProcessed        bool           `db:"is_processed"`
	ContentHash        string         `db:"content_hash"`
	ScrapingStatus     string         `db:"scraping_status"`
	LastScrapedAt      time.Time      `db:"last_scraped_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

const articleColumns = `id, source_id, url, title, meta_description, author,
	published_at, original_content, transformed_content, structured_content,
	tags, image_url, image_alt, image_caption, category, is_processed,
	content_hash, scraping_status, last_scraped_at, created_at, updated_at`

const insertArticleQuery = `INSERT INTO articles (` + articleColumns + `) VALUES (
	:id, :source_id, :url, :title, :meta_description, :author,
	:published_at, :original_content, :transformed_content, :structured_content,
	:tags, :image_url, :image_alt, :image_caption, :category, :is_processed,
	:content_hash, :scraping_status, :last_scraped_at, :created_at, :updated_at)`

const updateArticleQuery = `UPDATE articles SET
	source_id = :source_id,
	title = :title,
	meta_description = :meta_description,
	author = :author,
	published_at = :published_at,
	original_content = :original_content,
	transformed_content = :transformed_content,
	structured_content = :structured_content,
	tags = :tags,
	image_url = :image_url,
	image_alt = :image_alt,
	image_caption = :image_caption,
	category = :category,
	is_processed = :is_processed,
	content_hash = :content_hash,
	scraping_status = :scraping_status,
	last_scraped_at = :last_scraped_at,
	updated_at = :updated_at
	WHERE id = :id`

func newArticleRow(a *article.Article, now time.Time) (*articleRow, error) {
	structured := a.StructuredContent
	if structured == nil {
		structured = []content.Block{}
	}
	structuredJSON, err := json.Marshal(structured)
	if err != nil {
		return nil, fmt.Errorf("failed to encode structured content: %w", err)
	}

	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	row := &articleRow{
		SourceID:           sql.NullString{String: a.SourceID, Valid: a.SourceID != ""},
		URL:                a.URL,
		Title:              a.Title,
		MetaDescription:    a.MetaDescription,
		Author:             a.Author,
		OriginalContent:    a.OriginalContent,
		TransformedContent: a.ProcessedContent,
		StructuredContent:  string(structuredJSON),
		Tags:               string(tagsJSON),
		ImageURL:           a.MainImage.URL,
		ImageAlt:           a.MainImage.Alt,
		ImageCaption:       a.MainImage.Caption,
		Category:           a.Category,
		ContentHash:        a.ContentHash(),
		ScrapingStatus:     StatusSuccess,
		LastScrapedAt:      now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if a.PublishedAt != nil {
		row.PublishedAt = sql.NullTime{Time: a.PublishedAt.UTC(), Valid: true}
	}

	return row, nil
}

func (r *articleRow) toStored() (*StoredArticle, error) {
	var blocks []content.Block
	if err := json.Unmarshal([]byte(r.StructuredContent), &blocks); err != nil {
		return nil, fmt.Errorf("failed to decode structured content: %w", err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}

	stored := &StoredArticle{
		ID: r.ID,
		Article: article.Article{
			URL:               r.URL,
			Title:             r.Title,
			MetaDescription:   r.MetaDescription,
			Author:            r.Author,
			Tags:              tags,
			Category:          r.Category,
			OriginalContent:   r.OriginalContent,
			ProcessedContent:  r.TransformedContent,
			StructuredContent: blocks,
			MainImage: article.MainImage{
				URL:     r.ImageURL,
				Alt:     r.ImageAlt,
				Caption: r.ImageCaption,
			},
			SourceID: r.SourceID.String,
		},
		ContentHash:    r.ContentHash,
		ScrapingStatus: r.ScrapingStatus,
		IsProcessed:    r.IsProcessed,
		LastScrapedAt:  r.LastScrapedAt.UTC(),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.PublishedAt.Valid {
		t := r.PublishedAt.Time.UTC()
		stored.PublishedAt = &t
	}

	return stored, nil
}

// UpsertArticle stores a keyed by URL. An existing row whose content hash
// matches only has last_scraped_at refreshed.
func (s *Store) UpsertArticle(ctx context.Context, a *article.Article) (Outcome, error) {
	row, err := newArticleRow(a, s.now().UTC())
	if err != nil {
		return "", err
	}

	outcome, err := s.updateExisting(ctx, row)
	if !errors.Is(err, ErrArticleNotFound) {
		return outcome, err
	}

	row.ID = uuid.New().String()
	if _, err := s.db.NamedExecContext(ctx, insertArticleQuery, row); err != nil {
		if isUniqueViolation(err) {
			// Inserted concurrently.
			return s.updateExisting(ctx, row)
		}
		return "", fmt.Errorf("failed to insert article: %w", err)
	}

	return Inserted, nil
}

// updateExisting applies row to the stored article with the same URL, or
// returns ErrArticleNotFound.
func (s *Store) updateExisting(ctx context.Context, row *articleRow) (Outcome, error) {
	var existing struct {
		ID          string `db:"id"`
		ContentHash string `db:"content_hash"`
	}
	query := s.db.Rebind(`SELECT id, content_hash FROM articles WHERE url = ?`)
	err := s.db.GetContext(ctx, &existing, query, row.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrArticleNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query article: %w", err)
	}

	if existing.ContentHash == row.ContentHash {
		query := s.db.Rebind(`UPDATE articles SET last_scraped_at = ?, scraping_status = ? WHERE id = ?`)
		if _, err := s.db.ExecContext(ctx, query, row.LastScrapedAt, StatusSuccess, existing.ID); err != nil {
			return "", fmt.Errorf("failed to touch article: %w", err)
		}
		return Unchanged, nil
	}

	updated := *row
	updated.ID = existing.ID
	// Changed content needs reprocessing downstream.
	updated.IsProcessed = false
	if _, err := s.db.NamedExecContext(ctx, updateArticleQuery, &updated); err != nil {
		return "", fmt.Errorf("failed to update article: %w", err)
	}

	return Updated, nil
}

// GetArticleByURL retrieves a stored article by URL.
func (s *Store) GetArticleByURL(ctx context.Context, url string) (*StoredArticle, error) {
	var row articleRow
	query := s.db.Rebind(`SELECT ` + articleColumns + ` FROM articles WHERE url = ?`)

	err := s.db.GetContext(ctx, &row, query, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}

	return row.toStored()
}

// LastScrapedAt reports when url was last stored or confirmed unchanged.
func (s *Store) LastScrapedAt(ctx context.Context, url string) (time.Time, bool, error) {
	var at time.Time
	query := s.db.Rebind(`SELECT last_scraped_at FROM articles WHERE url = ?`)

	err := s.db.GetContext(ctx, &at, query, url)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query article: %w", err)
	}

	return at.UTC(), true, nil
}

// ListArticles lists stored articles, newest first.
func (s *Store) ListArticles(ctx context.Context, filter ArticleFilter) ([]StoredArticle, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := max(filter.Offset, 0)

	query := `SELECT ` + articleColumns + ` FROM articles`
	args := []any{}
	if filter.Source != "" {
		query += ` WHERE source_id = (SELECT id FROM sources WHERE name = ?)`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC, url LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var rows []articleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}

	articles := make([]StoredArticle, 0, len(rows))
	for i := range rows {
		stored, err := rows[i].toStored()
		if err != nil {
			return nil, err
		}
		articles = append(articles, *stored)
	}

	return articles, nil
}
