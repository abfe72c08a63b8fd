package reconcile

// Dedupe keeps the first candidate seen for each ProviderID, preserving
// input order.
func Dedupe(cands []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.ProviderID]; ok {
			continue
		}
		seen[c.ProviderID] = struct{}{}
		out = append(out, c)
	}
	return out
}
