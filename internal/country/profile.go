// Package country resolves ISO-3166 alpha-2 codes into search profiles:
// the phrases sent to the place provider, the keywords a result must carry
// and the names an address may use for the country.
package country

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile is the per-run view of a country. It is built fresh for every
// Resolve call and never shared.
type Profile struct {
	Code            string
	DisplayName     string
	SearchLanguage  string
	SearchTerms     []string
	ValidationTerms []string
	Aliases         []string
}

// ProfileOverride extends the base terms for one country.
type ProfileOverride struct {
	Language        string   `yaml:"language"`
	SearchTerms     []string `yaml:"search_terms"`
	ValidationTerms []string `yaml:"validation_terms"`
}

// Table is the immutable configuration behind a Resolver.
type Table struct {
	DefaultLanguage     string                     `yaml:"default_language"`
	BaseSearchTerms     []string                   `yaml:"base_search_terms"`
	BaseValidationTerms []string                   `yaml:"base_validation_terms"`
	Profiles            map[string]ProfileOverride `yaml:"profiles"`
	Names               map[string]string          `yaml:"names"`
	Aliases             map[string][]string        `yaml:"aliases"`
}

// DefaultTable returns the built-in table. Each call returns a new copy.
func DefaultTable() Table {
	return Table{
		DefaultLanguage: "en",
		BaseSearchTerms: []string{
			"Celestial Church of Christ",
			"CCC Parish",
			"Église du Christianisme Céleste",
			"Paroisse Christianisme Céleste",
		},
		BaseValidationTerms: []string{
			"celestial church",
			"celestial",
			"ccc",
			"christianisme celeste",
			"eglise celeste",
		},
		Profiles: map[string]ProfileOverride{
			"NG": {
				Language:        "en",
				SearchTerms:     []string{"Celestial Church of Christ Parish", "Ijo Mimo Kristi Ti Orun"},
				ValidationTerms: []string{"ijo mimo", "kristi ti orun"},
			},
			"BJ": {
				Language:        "fr",
				SearchTerms:     []string{"Christianisme Céleste Paroisse", "ECC Paroisse"},
				ValidationTerms: []string{"ecc", "paroisse"},
			},
			"TG": {Language: "fr", SearchTerms: []string{"Christianisme Céleste Paroisse"}},
			"CI": {Language: "fr", SearchTerms: []string{"Christianisme Céleste Paroisse"}},
			"FR": {Language: "fr", SearchTerms: []string{"Christianisme Céleste Paroisse"}},
			"CM": {Language: "fr"},
			"GH": {SearchTerms: []string{"Celestial Church of Christ Parish Ghana"}},
			"GB": {SearchTerms: []string{"Celestial Church of Christ Parish UK"}},
			"US": {SearchTerms: []string{"Celestial Church of Christ Parish USA"}},
		},
		Names: map[string]string{
			"GB": "United Kingdom",
			"US": "United States",
			"CI": "Côte d'Ivoire",
			"CD": "Democratic Republic of the Congo",
			"CG": "Republic of the Congo",
		},
		Aliases: map[string][]string{
			"GB": {"united kingdom", "uk", "great britain", "england", "scotland", "wales", "northern ireland"},
			"US": {"usa", "united states", "united states of america"},
			"CI": {"ivory coast", "cote d'ivoire", "cote divoire"},
			"CD": {"drc", "congo - kinshasa", "congo kinshasa"},
			"CG": {"congo - brazzaville", "congo brazzaville"},
			"NL": {"holland", "the netherlands"},
		},
	}
}

// LoadTable reads a YAML override file and merges it over DefaultTable.
// Profiles, names and aliases are merged per code; base terms and the
// default language replace the built-ins only when set.
func LoadTable(path string) (Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, eris.Wrapf(err, "country: read table %s", path)
	}

	var o Table
	if err := yaml.Unmarshal(data, &o); err != nil {
		return t, eris.Wrapf(err, "country: parse table %s", path)
	}

	if o.DefaultLanguage != "" {
		t.DefaultLanguage = o.DefaultLanguage
	}
	if len(o.BaseSearchTerms) > 0 {
		t.BaseSearchTerms = o.BaseSearchTerms
	}
	if len(o.BaseValidationTerms) > 0 {
		t.BaseValidationTerms = o.BaseValidationTerms
	}
	for code, p := range o.Profiles {
		t.Profiles[normalizeCode(code)] = p
	}
	for code, n := range o.Names {
		t.Names[normalizeCode(code)] = n
	}
	for code, a := range o.Aliases {
		t.Aliases[normalizeCode(code)] = a
	}
	return t, nil
}
