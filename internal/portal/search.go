package portal

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/frederic-klein/fml/internal/mod"
)

// Search keeps the entries whose name or title fuzzily matches query,
// ignoring case and diacritics. Order is preserved. An empty query matches all.
func Search(entries []mod.Entry, query string) []mod.Entry {
	query = strings.TrimSpace(query)
	if query == "" {
		return entries
	}

	var matches []mod.Entry
	for _, e := range entries {
		if fuzzy.MatchNormalizedFold(query, e.Name) || fuzzy.MatchNormalizedFold(query, e.Title) {
			matches = append(matches, e)
		}
	}
	return matches
}
