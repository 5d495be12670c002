package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// lazySrcAttrs are consulted when an image has no src.
var lazySrcAttrs = []string{"data-src", "data-lazy-src", "data-original"}

// Extract walks root in document order and returns its paragraphs, headings,
// images and block quotes as blocks. Empty paragraphs and headings are
// dropped. The result is never nil.
func Extract(root *goquery.Selection) []Block {
	blocks := []Block{}
	if root == nil || root.Length() == 0 {
		return blocks
	}

	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Children().Each(func(_ int, el *goquery.Selection) {
			switch tag := goquery.NodeName(el); tag {
			case "script", "style", "noscript", "template":
				return

			case "p":
				if text := cleanText(el.Text()); text != "" {
					blocks = append(blocks, Text(text))
				}
				walk(el)

			case "h1", "h2", "h3", "h4", "h5", "h6":
				if text := cleanText(el.Text()); text != "" {
					blocks = append(blocks, Header(text, int(tag[1]-'0')))
				}

			case "img":
				blocks = append(blocks, ImageFrom(el))

			case "figcaption":
				// Consumed as the caption of the figure's image.
				if el.Closest("figure").Find("img").Length() > 0 {
					return
				}
				walk(el)

			case "blockquote":
				if text := cleanText(el.Text()); text != "" {
					cite, _ := el.Attr("cite")
					blocks = append(blocks, Quote(text, strings.TrimSpace(cite)))
				}

			default:
				walk(el)
			}
		})
	}
	walk(root)

	return blocks
}

// ImageFrom builds an image block from an img element. The source falls
// back to common lazy-loading attributes and the caption to the enclosing
// figure's figcaption.
func ImageFrom(img *goquery.Selection) Block {
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" {
		for _, attr := range lazySrcAttrs {
			if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
				src = v
				break
			}
		}
	}

	caption := cleanText(img.AttrOr("title", ""))
	if caption == "" {
		caption = cleanText(img.Closest("figure").Find("figcaption").First().Text())
	}

	return Image(src, strings.TrimSpace(img.AttrOr("alt", "")), caption)
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
