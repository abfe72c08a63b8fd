package reconcile

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parish-cli/internal/address"
	"github.com/sells-group/parish-cli/internal/parish"
	"github.com/sells-group/parish-cli/pkg/google"
)

// Enricher fetches place details and builds canonical records.
type Enricher struct {
	client        google.Client
	apiKey        string
	photoBaseURL  string
	photoMaxWidth int
	concurrency   int
	now           func() time.Time
}

// EnrichResult holds the built records in candidate order and the number of
// candidates whose detail lookup failed or never started.
type EnrichResult struct {
	Records   []*parish.Record
	Failed    int
	Abandoned int
}

// Enrich looks up details for every candidate with bounded concurrency. A
// failed lookup skips that candidate only.
func (e *Enricher) Enrich(ctx context.Context, cands []Candidate, countryCode string) EnrichResult {
	log := zap.L().With(zap.String("country", countryCode))

	type slot struct {
		rec     *parish.Record
		err     error
		started bool
	}
	slots := make([]slot, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.concurrency, 1))

	for i, c := range cands {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			slots[i].started = true
			details, err := e.client.PlaceDetails(gctx, c.ProviderID)
			if err != nil {
				slots[i].err = err
				return nil
			}
			slots[i].rec = e.BuildRecord(c, details, countryCode)
			return nil
		})
	}
	_ = g.Wait()

	var res EnrichResult
	for i, s := range slots {
		switch {
		case !s.started:
			res.Abandoned++
		case s.err != nil:
			log.Warn("place details failed, skipping candidate",
				zap.String("place_id", cands[i].ProviderID),
				zap.String("name", cands[i].DisplayName),
				zap.Error(s.err),
			)
			res.Failed++
		default:
			res.Records = append(res.Records, s.rec)
		}
	}
	return res
}

// BuildRecord assembles the canonical record for c. details may be nil.
// Address.Country is always countryCode.
func (e *Enricher) BuildRecord(c Candidate, details *google.PlaceDetails, countryCode string) *parish.Record {
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	ts := now().UTC()

	rec := &parish.Record{
		Name:         c.DisplayName,
		Address:      address.ParseForCountry(c.FormattedAddress, countryCode),
		Latitude:     c.Location.Lat,
		Longitude:    c.Location.Lng,
		Description:  c.FormattedAddress,
		Photos:       e.photoURLs(c, details),
		OpeningHours: ParseHours(details.WeekdayDescriptions()),
		CreatedAt:    ts,
		UpdatedAt:    ts,
		ImportSource: parish.SourceGooglePlaces,
		SourceID:     c.ProviderID,
	}
	if details != nil {
		rec.Phone = firstNonEmpty(details.InternationalPhoneNumber, details.NationalPhoneNumber)
		rec.Website = strings.TrimSpace(details.WebsiteURI)
	}
	rec.Normalize()
	return rec
}

// photoURLs prefers the detail photos and falls back to the search photos.
func (e *Enricher) photoURLs(c Candidate, details *google.PlaceDetails) []string {
	refs := c.PhotoRefs
	if details != nil && len(details.Photos) > 0 {
		refs = make([]string, 0, len(details.Photos))
		for _, p := range details.Photos {
			if p.Name != "" {
				refs = append(refs, p.Name)
			}
		}
	}
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		urls = append(urls, google.PhotoURL(e.photoBaseURL, ref, e.apiKey, e.photoMaxWidth))
	}
	return urls
}

// ParseHours folds "Monday: 9:00 AM – 5:00 PM" lines into a map keyed by
// lower-cased day. Lines without ": " are skipped.
func ParseHours(lines []string) map[string]string {
	hours := make(map[string]string, len(lines))
	for _, line := range lines {
		day, h, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		day = strings.ToLower(strings.TrimSpace(day))
		if day == "" {
			continue
		}
		hours[day] = strings.TrimSpace(h)
	}
	return hours
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
