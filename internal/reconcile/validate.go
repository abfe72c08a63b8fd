package reconcile

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/sells-group/parish-cli/internal/country"
	"github.com/sells-group/parish-cli/internal/metrics"
)

// Rejection reasons.
const (
	ReasonIrrelevant   = "irrelevant"
	ReasonWrongCountry = "wrong_country"
)

// Validator applies the relevance and locality gates to search candidates.
type Validator struct{}

// Check reports whether c passes both gates for p. reason is empty when ok.
func (Validator) Check(c Candidate, p *country.Profile) (ok bool, reason string) {
	name := country.Fold(c.DisplayName)
	addr := country.Fold(c.FormattedAddress)

	if !relevant(name, addr, p.ValidationTerms) {
		return false, ReasonIrrelevant
	}
	if !inCountry(addr, p) {
		return false, ReasonWrongCountry
	}
	return true, ""
}

// Filter returns the candidates that pass Check, in order, and the number
// rejected.
func (v Validator) Filter(cands []Candidate, p *country.Profile) ([]Candidate, int) {
	log := zap.L().With(zap.String("country", p.Code))
	kept := make([]Candidate, 0, len(cands))
	rejected := 0
	for _, c := range cands {
		ok, reason := v.Check(c, p)
		if !ok {
			rejected++
			metrics.RejectionsTotal.WithLabelValues(p.Code, reason).Inc()
			log.Debug("candidate rejected",
				zap.String("name", c.DisplayName),
				zap.String("address", c.FormattedAddress),
				zap.String("reason", reason),
			)
			continue
		}
		kept = append(kept, c)
	}
	return kept, rejected
}

func relevant(name, addr string, terms []string) bool {
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(name, t) || strings.Contains(addr, t) {
			return true
		}
	}
	return false
}

// inCountry matches the folded display name as a substring, and the code and
// aliases as whole words so "ng" inside "Lagos" does not count.
func inCountry(addr string, p *country.Profile) bool {
	if dn := country.Fold(p.DisplayName); dn != "" && strings.Contains(addr, dn) {
		return true
	}
	words := tokens(addr)
	if containsSeq(words, tokens(strings.ToLower(p.Code))) {
		return true
	}
	for _, a := range p.Aliases {
		if containsSeq(words, tokens(a)) {
			return true
		}
	}
	return false
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsSeq reports whether needle occurs as a contiguous run in hay.
func containsSeq(hay, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(hay) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j, w := range needle {
			if hay[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}
