// Package content reduces an article body to an ordered list of typed blocks
// and renders those blocks back into plain text.
package content

// Kind identifies what a Block holds.
type Kind string

// Block kinds.
const (
	KindText   Kind = "text"
	KindHeader Kind = "header"
	KindImage  Kind = "image"
	KindQuote  Kind = "quote"
)

// Metadata carries the kind-specific attributes of a block.
type Metadata struct {
	Level   int    `json:"level,omitempty"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Block is one unit of article content. For images Content holds the image
// URL; for every other kind it holds the text.
type Block struct {
	Kind     Kind      `json:"type"`
	Content  string    `json:"content"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Text returns a text block.
func Text(s string) Block {
	return Block{Kind: KindText, Content: s}
}

// Header returns a header block of the given level.
func Header(s string, level int) Block {
	return Block{Kind: KindHeader, Content: s, Metadata: &Metadata{Level: level}}
}

// Image returns an image block.
func Image(src, alt, caption string) Block {
	return Block{Kind: KindImage, Content: src, Metadata: &Metadata{Alt: alt, Caption: caption}}
}

// Quote returns a quote block citing source.
func Quote(s, source string) Block {
	return Block{Kind: KindQuote, Content: s, Metadata: &Metadata{Source: source}}
}
