package country

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrCountryRequired is returned for an empty country code.
	ErrCountryRequired = eris.New("country code is required")
	// ErrUnknownCountry is returned for codes that are not two ASCII letters.
	ErrUnknownCountry = eris.New("unknown country code")
)

// legacyCodes maps retired or informal codes to their ISO-3166 code.
var legacyCodes = map[string]string{
	"UK": "GB",
}

// Resolver builds Profiles from an injected Table.
type Resolver struct {
	table Table
}

// NewResolver returns a Resolver over table.
func NewResolver(table Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve returns the profile for code. Any syntactically valid code yields
// a usable profile; codes without an override get the base terms.
func (r *Resolver) Resolve(code string) (*Profile, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, ErrCountryRequired
	}
	if !isAlpha2(code) {
		return nil, eris.Wrapf(ErrUnknownCountry, "country: %q", code)
	}
	if canonical, ok := legacyCodes[code]; ok {
		code = canonical
	}

	p := &Profile{
		Code:           code,
		DisplayName:    r.displayName(code),
		SearchLanguage: r.table.DefaultLanguage,
	}
	if p.SearchLanguage == "" {
		p.SearchLanguage = "en"
	}
	p.SearchTerms = append(p.SearchTerms, r.table.BaseSearchTerms...)
	validation := append([]string(nil), r.table.BaseValidationTerms...)

	if o, ok := r.table.Profiles[code]; ok {
		if o.Language != "" {
			p.SearchLanguage = o.Language
		}
		p.SearchTerms = append(p.SearchTerms, o.SearchTerms...)
		validation = append(validation, o.ValidationTerms...)
	} else {
		zap.L().Info("no country profile, using defaults",
			zap.String("country", code),
			zap.String("display_name", p.DisplayName),
		)
	}
	p.ValidationTerms = dedupeFolded(validation)
	p.Aliases = r.aliases(code)
	return p, nil
}

// DisplayName returns the display name for code without building a profile.
func (r *Resolver) DisplayName(code string) string {
	code = normalizeCode(code)
	if canonical, ok := legacyCodes[code]; ok {
		code = canonical
	}
	return r.displayName(code)
}

func (r *Resolver) displayName(code string) string {
	if n, ok := r.table.Names[code]; ok && n != "" {
		return n
	}
	if n := cldrName(code); n != "" {
		return n
	}
	return code
}

// aliases collects the folded alias list for code plus any legacy codes
// that point at it.
func (r *Resolver) aliases(code string) []string {
	all := append([]string(nil), r.table.Aliases[code]...)
	for legacy, canonical := range legacyCodes {
		if canonical == code {
			all = append(all, legacy)
			all = append(all, r.table.Aliases[legacy]...)
		}
	}
	return dedupeFolded(all)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isAlpha2(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// dedupeFolded folds each term and drops blanks and repeats, keeping the
// first occurrence order.
func dedupeFolded(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		f := Fold(t)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
