package country

import (
	"fmt"
	"strings"
)

// BuildQueries returns one quoted phrase query per search term, in profile
// order: `"<term>" "<display name>"`.
func BuildQueries(p *Profile) []string {
	queries := make([]string, 0, len(p.SearchTerms))
	for _, term := range p.SearchTerms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		queries = append(queries, fmt.Sprintf("%q %q", term, p.DisplayName))
	}
	return queries
}
