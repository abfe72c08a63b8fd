// Package address splits provider formatted addresses into parish address
// fields using the comma-segment convention "street, city, province, ..., country".
package address

import (
	"regexp"
	"strings"

	"github.com/sells-group/parish-cli/internal/parish"
)

// postalRe matches postal-code-like tokens: runs of digits optionally mixed
// with letters (e.g. "100001", "SW1A 1AA", "M5V 3L9").
var postalRe = regexp.MustCompile(`\b(?:\d{4,6}(?:-\d{4})?|[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}|[A-Z]\d[A-Z] ?\d[A-Z]\d)\b`)

// Segments splits s on commas and trims each part. Empty parts are kept so
// positions stay stable for malformed input.
func Segments(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Parse maps segments 0, 1 and 2 to street, city and province and the last
// segment to country. Missing segments yield "". The postal code is picked
// out of the city or province segment without altering either.
func Parse(formatted string) parish.Address {
	parts := Segments(formatted)
	var a parish.Address
	a.Street = at(parts, 0)
	a.City = at(parts, 1)
	a.Province = at(parts, 2)
	if len(parts) > 0 {
		a.Country = parts[len(parts)-1]
	}
	for _, seg := range []string{a.Province, a.City} {
		if m := postalRe.FindString(seg); m != "" {
			a.PostalCode = m
			break
		}
	}
	return a
}

// ParseForCountry parses formatted and forces Country to code. Records built
// from search results always carry the requested country code.
func ParseForCountry(formatted, code string) parish.Address {
	a := Parse(formatted)
	a.Country = code
	return a
}

func at(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}
