// Package article defines the uniform record every site adapter produces.
package article

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/pevans/archscraper/content"
)

// UnknownAuthor is used when a page credits nobody.
const UnknownAuthor = "Unknown"

// MainImage is the lead image of an article.
type MainImage struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Article is a scraped magazine article.
type Article struct {
	URL               string          `json:"url"`
	Title             string          `json:"title"`
	MetaDescription   string          `json:"meta_description,omitempty"`
	Author            string          `json:"author"`
	PublishedAt       *time.Time      `json:"published_at,omitempty"`
	Tags              []string        `json:"tags"`
	Category          string          `json:"category,omitempty"`
	OriginalContent   string          `json:"original_content"`
	ProcessedContent  string          `json:"processed_content"`
	StructuredContent []content.Block `json:"structured_content"`
	MainImage         MainImage       `json:"main_image"`
	SourceID          string          `json:"source_id,omitempty"`
}

// Meta holds the page-level fields an adapter collects before assembly.
type Meta struct {
	URL             string
	Title           string
	MetaDescription string
	Author          string
	PublishedAt     *time.Time
	Tags            []string
	Category        string
	SourceID        string
	OriginalContent string
}

// Assemble builds an Article. ProcessedContent is always rendered from
// blocks. A nil PublishedAt is kept as-is; callers decide on a fallback.
func Assemble(meta Meta, blocks []content.Block, image MainImage) Article {
	if blocks == nil {
		blocks = []content.Block{}
	}

	author := strings.TrimSpace(meta.Author)
	if author == "" {
		author = UnknownAuthor
	}

	var published *time.Time
	if meta.PublishedAt != nil {
		t := meta.PublishedAt.UTC()
		published = &t
	}

	return Article{
		URL:               strings.TrimSpace(meta.URL),
		Title:             strings.Join(strings.Fields(meta.Title), " "),
		MetaDescription:   strings.TrimSpace(meta.MetaDescription),
		Author:            author,
		PublishedAt:       published,
		Tags:              uniqueTags(meta.Tags),
		Category:          meta.Category,
		OriginalContent:   meta.OriginalContent,
		ProcessedContent:  content.Render(blocks),
		StructuredContent: blocks,
		MainImage:         image,
		SourceID:          meta.SourceID,
	}
}

// uniqueTags trims tags and drops blanks and repeats, keeping first
// occurrences in order.
func uniqueTags(tags []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.Join(strings.Fields(tag), " ")
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// ContentHash digests every stored content field of a. Two articles with the
// same hash need no update.
func (a *Article) ContentHash() string {
	h := sha256.New()

	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(a.URL)
	write(a.Title)
	write(a.MetaDescription)
	write(a.Author)
	if a.PublishedAt != nil {
		write(a.PublishedAt.UTC().Format(time.RFC3339Nano))
	} else {
		write("")
	}
	write(strings.Join(a.Tags, "\x1f"))
	write(a.Category)
	write(a.OriginalContent)
	write(a.ProcessedContent)
	structured, _ := json.Marshal(a.StructuredContent)
	write(string(structured))
	write(a.MainImage.URL)
	write(a.MainImage.Alt)
	write(a.MainImage.Caption)

	return hex.EncodeToString(h.Sum(nil))
}
