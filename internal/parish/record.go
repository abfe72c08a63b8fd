package parish

import (
	"strings"
	"time"
)

// Source identifies where a record was imported from. SourceID values are
// only unique within one Source.
type Source string

const (
	SourceGooglePlaces Source = "google_places"
	SourceGoogleMyMaps Source = "google_my_maps"
	SourceManual       Source = "manual"
	SourceImport       Source = "import"
)

// Valid reports whether s is a known import source.
func (s Source) Valid() bool {
	switch s {
	case SourceGooglePlaces, SourceGoogleMyMaps, SourceManual, SourceImport:
		return true
	}
	return false
}

// Address is the postal address of a parish. Fields are "" when unknown.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Record is the canonical, persisted parish.
type Record struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Address      Address           `json:"address"`
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	Phone        string            `json:"phone"`
	Email        string            `json:"email"`
	Website      string            `json:"website"`
	LeaderName   string            `json:"leaderName"`
	Description  string            `json:"description"`
	Photos       []string          `json:"photos"`
	OpeningHours map[string]string `json:"openingHours"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	ImportSource Source            `json:"importSource"`
	SourceID     string            `json:"sourceId"`
}

// Normalize replaces nil containers with empty ones, lower-cases opening
// hour keys and keeps UpdatedAt from preceding CreatedAt.
func (r *Record) Normalize() {
	if r.Photos == nil {
		r.Photos = []string{}
	}
	hours := make(map[string]string, len(r.OpeningHours))
	for day, h := range r.OpeningHours {
		day = strings.ToLower(strings.TrimSpace(day))
		if day == "" {
			continue
		}
		hours[day] = h
	}
	r.OpeningHours = hours
	if r.UpdatedAt.Before(r.CreatedAt) {
		r.UpdatedAt = r.CreatedAt
	}
}

// Merge applies candidate onto a copy of existing. Only values the candidate
// actually carries overwrite: blank strings, zero coordinates, empty photo
// lists and empty hour maps leave the existing value in place. Identity
// fields (ID, CreatedAt, ImportSource, SourceID) always come from existing.
func Merge(existing, candidate *Record, now time.Time) *Record {
	out := *existing
	out.Photos = append([]string(nil), existing.Photos...)
	out.OpeningHours = make(map[string]string, len(existing.OpeningHours)+len(candidate.OpeningHours))
	for k, v := range existing.OpeningHours {
		out.OpeningHours[k] = v
	}

	setString(&out.Name, candidate.Name)
	setString(&out.Address.Street, candidate.Address.Street)
	setString(&out.Address.City, candidate.Address.City)
	setString(&out.Address.Province, candidate.Address.Province)
	setString(&out.Address.PostalCode, candidate.Address.PostalCode)
	setString(&out.Address.Country, candidate.Address.Country)
	setString(&out.Phone, candidate.Phone)
	setString(&out.Email, candidate.Email)
	setString(&out.Website, candidate.Website)
	setString(&out.LeaderName, candidate.LeaderName)
	setString(&out.Description, candidate.Description)

	if candidate.Latitude != 0 || candidate.Longitude != 0 {
		out.Latitude = candidate.Latitude
		out.Longitude = candidate.Longitude
	}
	if len(candidate.Photos) > 0 {
		out.Photos = append([]string(nil), candidate.Photos...)
	}
	for k, v := range candidate.OpeningHours {
		if strings.TrimSpace(v) != "" {
			out.OpeningHours[k] = v
		}
	}

	out.UpdatedAt = now.UTC()
	out.Normalize()
	return &out
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}
