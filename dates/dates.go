// Package dates turns the free-form publication dates found on magazine
// pages into UTC instants.
package dates

import (
	"strings"
	"time"
)

// layouts are tried in order. Layouts without a zone are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// Normalize parses raw against the known layouts and returns the instant in
// UTC. The second return value is false when raw is empty or matches none of
// them.
func Normalize(raw string) (time.Time, bool) {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

// Format renders t in the canonical form accepted by Normalize.
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
