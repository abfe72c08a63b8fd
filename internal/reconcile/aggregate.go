package reconcile

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/parish-cli/internal/country"
	"github.com/sells-group/parish-cli/internal/metrics"
	"github.com/sells-group/parish-cli/pkg/google"
)

const (
	// maxPagesPerQuery caps text search pagination per query.
	maxPagesPerQuery = 3
	placeType        = "church"
)

// Aggregator fans the built queries out to the provider.
type Aggregator struct {
	client      google.Client
	limiter     *rate.Limiter
	concurrency int
}

// NewAggregator returns an Aggregator issuing at most ratePerSec searches per
// second with up to concurrency in flight.
func NewAggregator(client google.Client, ratePerSec float64, concurrency int) *Aggregator {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Aggregator{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), 1),
		concurrency: concurrency,
	}
}

// AggregateResult holds the concatenated candidates and per-query counts.
// AbandonedQueries were never sent because the run context ended first.
type AggregateResult struct {
	Candidates       []Candidate
	FailedQueries    int
	EmptyQueries     int
	AbandonedQueries int
}

// Search runs every query and concatenates the results in query order. A
// failing query is logged and skipped; Search never fails as a whole.
func (a *Aggregator) Search(ctx context.Context, queries []string, p *country.Profile) AggregateResult {
	log := zap.L().With(zap.String("country", p.Code))

	type slot struct {
		cands []Candidate
		err   error
		done  bool
	}
	slots := make([]slot, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, q := range queries {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			cands, err := a.searchQuery(gctx, q, p)
			slots[i] = slot{cands: cands, err: err, done: true}
			return nil // one query must not cancel its siblings
		})
	}
	_ = g.Wait()

	var res AggregateResult
	for i, s := range slots {
		switch {
		case !s.done:
			log.Warn("search query not started before deadline", zap.String("query", queries[i]))
			res.AbandonedQueries++
		case s.err != nil:
			log.Warn("search query failed", zap.String("query", queries[i]), zap.Error(s.err))
			metrics.QueryFailuresTotal.WithLabelValues(p.Code).Inc()
			res.FailedQueries++
		case len(s.cands) == 0:
			log.Info("search query returned no results", zap.String("query", queries[i]))
			res.EmptyQueries++
		}
		// Partial pages from a failed query still count.
		res.Candidates = append(res.Candidates, s.cands...)
	}

	log.Info("search complete",
		zap.Int("queries", len(queries)),
		zap.Int("failed", res.FailedQueries),
		zap.Int("abandoned", res.AbandonedQueries),
		zap.Int("candidates", len(res.Candidates)),
	)
	return res
}

// searchQuery follows pagination up to maxPagesPerQuery.
func (a *Aggregator) searchQuery(ctx context.Context, query string, p *country.Profile) ([]Candidate, error) {
	var (
		out       []Candidate
		pageToken string
	)
	for page := 0; page < maxPagesPerQuery; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return out, err
		}

		resp, err := a.client.TextSearch(ctx, google.TextSearchRequest{
			TextQuery:    query,
			IncludedType: placeType,
			LanguageCode: p.SearchLanguage,
			RegionCode:   strings.ToLower(p.Code),
			PageToken:    pageToken,
		})
		if err != nil {
			return out, err
		}
		for _, place := range resp.Places {
			if c, ok := candidateFromPlace(place); ok {
				out = append(out, c)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return out, nil
}
