package content

import "strings"

// NoDescription stands in for a missing image alt text.
const NoDescription = "No description"

// Render turns blocks into readable text: "#" headings, "> " quotes and
// "[Image: ...]" placeholders, separated by blank lines. Blocks of an unknown
// kind are skipped.
func Render(blocks []Block) string {
	parts := make([]string, 0, len(blocks))

	for _, b := range blocks {
		switch b.Kind {
		case KindHeader:
			level := 1
			if b.Metadata != nil && b.Metadata.Level > 0 {
				level = min(b.Metadata.Level, 6)
			}
			parts = append(parts, strings.Repeat("#", level)+" "+b.Content)

		case KindText:
			parts = append(parts, b.Content)

		case KindQuote:
			parts = append(parts, "> "+b.Content)

		case KindImage:
			alt, caption := NoDescription, ""
			if b.Metadata != nil {
				if b.Metadata.Alt != "" {
					alt = b.Metadata.Alt
				}
				caption = b.Metadata.Caption
			}
			s := "[Image: " + alt + "]"
			if caption != "" {
				s += " (" + caption + ")"
			}
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, "\n\n")
}
