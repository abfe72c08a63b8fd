// Package reconcile turns provider search results and structured sources
// into parish records and merges them into a parish.Store.
package reconcile

import (
	"strings"

	"github.com/sells-group/parish-cli/pkg/google"
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// Candidate is a search result before validation and enrichment. It lives
// only for the duration of one run.
type Candidate struct {
	ProviderID       string
	DisplayName      string
	FormattedAddress string
	Location         LatLng
	PhotoRefs        []string
}

// candidateFromPlace maps a search result. ok is false when the provider
// omitted the place id.
func candidateFromPlace(p google.Place) (Candidate, bool) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return Candidate{}, false
	}
	refs := make([]string, 0, len(p.Photos))
	for _, ph := range p.Photos {
		if ph.Name != "" {
			refs = append(refs, ph.Name)
		}
	}
	return Candidate{
		ProviderID:       id,
		DisplayName:      strings.TrimSpace(p.DisplayName.Text),
		FormattedAddress: strings.TrimSpace(p.FormattedAddress),
		Location:         LatLng{Lat: p.Location.Latitude, Lng: p.Location.Longitude},
		PhotoRefs:        refs,
	}, true
}
