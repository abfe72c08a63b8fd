package country

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// regionNamer renders CLDR English region names.
var regionNamer = display.English.Regions()

// cldrName returns the English CLDR name for code, or "" when CLDR has none.
func cldrName(code string) string {
	region, err := language.ParseRegion(code)
	if err != nil {
		return ""
	}
	name := regionNamer.Name(region)
	if name == "" || strings.EqualFold(name, "Unknown Region") {
		return ""
	}
	return name
}

// Fold lower-cases s, strips combining marks and normalizes typographic
// apostrophes so "Bénin" and "benin" or "Côte d’Ivoire" and "cote d'ivoire"
// compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.NewReplacer("’", "'", "‘", "'").Replace(out)
	return strings.ToLower(strings.TrimSpace(out))
}
