package openlibrary

import (
	"strings"
	"time"
)

// Layouts seen in the publish_date field, most specific first.
var publishDateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2006",
	"Jan 2006",
	"2006-01",
	"2006",
}

// ParsePublishDate parses Open Library's free-text publish_date. Missing
// parts default to the first month or day.
func ParsePublishDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimPrefix(s, "c")
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
