package reconcile

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parish-cli/internal/country"
	"github.com/sells-group/parish-cli/internal/metrics"
	"github.com/sells-group/parish-cli/internal/parish"
	"github.com/sells-group/parish-cli/pkg/google"
	"github.com/sells-group/parish-cli/pkg/sheets"
)

// Configuration errors. They are returned before any provider or store call.
var (
	ErrMissingAPIKey   = eris.New("places api key is not configured")
	ErrInvalidSource   = eris.New("invalid structured source")
	ErrCountryRequired = country.ErrCountryRequired
	ErrUnknownCountry  = country.ErrUnknownCountry
)

// Run kinds recorded in the import_runs audit table and metrics.
const (
	KindPlaces = "places"
)

// Result summarizes one import run.
type Result struct {
	ImportedCount int    `json:"importedCount"`
	UpdatedCount  int    `json:"updatedCount"`
	RejectedCount int    `json:"rejectedCount"`
	FailedCount   int    `json:"failedCount"`
	Message       string `json:"message"`
}

// Config tunes an Engine.
type Config struct {
	APIKey            string
	PhotoBaseURL      string
	PhotoMaxWidth     int
	SearchRateLimit   float64
	SearchConcurrency int
	DetailConcurrency int
	RunTimeout        time.Duration
	WriteTimeout      time.Duration
	SheetRange        string
}

// Engine exposes the two import entry points.
type Engine struct {
	cfg        Config
	store      parish.Store
	places     google.Client
	sheets     sheets.Client
	resolver   *country.Resolver
	httpClient *http.Client
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSheets sets the client used for spreadsheet sources.
func WithSheets(c sheets.Client) Option {
	return func(e *Engine) { e.sheets = c }
}

// WithHTTPClient sets the client used to fetch remote feature feeds.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Engine) { e.httpClient = hc }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(cfg Config, store parish.Store, places google.Client, resolver *country.Resolver, opts ...Option) *Engine {
	if cfg.PhotoMaxWidth <= 0 {
		cfg.PhotoMaxWidth = 400
	}
	if cfg.SheetRange == "" {
		cfg.SheetRange = "A2:J"
	}
	if resolver == nil {
		resolver = country.NewResolver(country.DefaultTable())
	}
	e := &Engine{
		cfg:        cfg,
		store:      store,
		places:     places,
		resolver:   resolver,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ImportFromPlaceSearch searches the provider for parishes in countryCode and
// reconciles the results into the store. Per-query and per-candidate
// failures are logged and counted; only configuration errors are returned.
// When the run deadline passes the partial result is returned with a nil
// error.
//
// Legacy aliases resolve to their canonical profile, so a request for "UK"
// searches and stores records under "GB"; the Result message names both codes.
func (e *Engine) ImportFromPlaceSearch(ctx context.Context, countryCode string) (*Result, error) {
	if e.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	profile, err := e.resolver.Resolve(countryCode)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("country", profile.Code))
	start := e.now()
	run := e.startRun(ctx, KindPlaces, profile.Code)

	rctx, cancel := e.runContext(ctx)
	defer cancel()

	queries := country.BuildQueries(profile)
	log.Info("place search import started",
		zap.String("display_name", profile.DisplayName),
		zap.String("language", profile.SearchLanguage),
		zap.Int("queries", len(queries)),
	)

	agg := NewAggregator(e.places, e.cfg.SearchRateLimit, e.cfg.SearchConcurrency).Search(rctx, queries, profile)
	unique := Dedupe(agg.Candidates)
	valid, rejected := Validator{}.Filter(unique, profile)

	log.Info("candidates filtered",
		zap.Int("raw", len(agg.Candidates)),
		zap.Int("unique", len(unique)),
		zap.Int("valid", len(valid)),
		zap.Int("rejected", rejected),
	)

	enricher := &Enricher{
		client:        e.places,
		apiKey:        e.cfg.APIKey,
		photoBaseURL:  e.cfg.PhotoBaseURL,
		photoMaxWidth: e.cfg.PhotoMaxWidth,
		concurrency:   e.cfg.DetailConcurrency,
		now:           e.now,
	}
	enr := enricher.Enrich(rctx, valid, profile.Code)
	// Candidates whose details were fetched before the deadline are written.
	tally := e.reconciler().Apply(context.WithoutCancel(rctx), enr.Records)

	res := &Result{
		ImportedCount: tally.Imported,
		UpdatedCount:  tally.Updated,
		RejectedCount: rejected,
		FailedCount:   enr.Failed + tally.Failed,
	}
	res.Message = fmt.Sprintf("Imported %d new parishes", res.ImportedCount)
	if requested := strings.ToUpper(strings.TrimSpace(countryCode)); requested != profile.Code {
		res.Message += fmt.Sprintf(" (country %s stored as %s)", requested, profile.Code)
	}
	if rctx.Err() != nil {
		res.Message += fmt.Sprintf(" (stopped early: %d search queries and %d candidates not processed)",
			agg.AbandonedQueries, enr.Abandoned)
		log.Warn("run deadline reached, returning partial result",
			zap.Int("abandoned_queries", agg.AbandonedQueries),
			zap.Int("abandoned", enr.Abandoned),
			zap.Error(rctx.Err()),
		)
	}

	e.finishRun(ctx, run, res, start, KindPlaces)
	log.Info("place search import complete",
		zap.Int("imported", res.ImportedCount),
		zap.Int("updated", res.UpdatedCount),
		zap.Int("rejected", res.RejectedCount),
		zap.Int("failed", res.FailedCount),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return res, nil
}

func (e *Engine) reconciler() *Reconciler {
	r := NewReconciler(e.store, e.cfg.WriteTimeout)
	r.now = e.now
	return r
}

func (e *Engine) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.RunTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// startRun records the run in the audit table. Audit failures are logged and
// never block the import.
func (e *Engine) startRun(ctx context.Context, kind, target string) *parish.Run {
	run, err := e.store.CreateRun(ctx, kind, target)
	if err != nil {
		zap.L().Warn("create import run failed", zap.String("kind", kind), zap.Error(err))
		return nil
	}
	return run
}

func (e *Engine) finishRun(ctx context.Context, run *parish.Run, res *Result, start time.Time, kind string) {
	metrics.RunDuration.WithLabelValues(kind).Observe(e.now().Sub(start).Seconds())
	metrics.ObserveRecords(kind, res.ImportedCount, res.UpdatedCount, res.RejectedCount, res.FailedCount)

	status := parish.RunStatusComplete
	if res.ImportedCount+res.UpdatedCount == 0 && res.FailedCount > 0 {
		status = parish.RunStatusFailed
	}
	metrics.RunsTotal.WithLabelValues(kind, string(status)).Inc()

	if run == nil {
		return
	}
	completed := e.now().UTC()
	run.Status = status
	run.Imported = res.ImportedCount
	run.Updated = res.UpdatedCount
	run.Rejected = res.RejectedCount
	run.Failed = res.FailedCount
	run.Message = res.Message
	run.CompletedAt = &completed

	wctx, cancel := e.reconciler().writeContext(ctx)
	defer cancel()
	if err := e.store.CompleteRun(wctx, run); err != nil {
		zap.L().Warn("complete import run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}
