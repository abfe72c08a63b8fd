package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parish-cli/internal/country"
	"github.com/sells-group/parish-cli/internal/db"
	"github.com/sells-group/parish-cli/internal/metrics"
	"github.com/sells-group/parish-cli/internal/parish"
	"github.com/sells-group/parish-cli/internal/reconcile"
	"github.com/sells-group/parish-cli/internal/resilience"
	"github.com/sells-group/parish-cli/pkg/google"
	"github.com/sells-group/parish-cli/pkg/sheets"
)

func initStore(ctx context.Context) (parish.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "parishes.db"
		}
		return parish.NewSQLite(dsn)
	case "postgres":
		return parish.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newServiceBreakers returns the per-provider circuit breakers. State
// changes are logged and exported as the parish_provider_circuit_state gauge.
func newServiceBreakers() *resilience.ServiceBreakers {
	bc := resilience.DefaultCircuitBreakerConfig()
	bc.OnStateChange = func(service string, from, to resilience.CircuitState) {
		metrics.CircuitState.WithLabelValues(service).Set(float64(to))
		log := zap.L().Info
		if to == resilience.CircuitOpen {
			log = zap.L().Warn
		}
		log("circuit breaker state change",
			zap.String("service", service),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return resilience.NewServiceBreakers(bc)
}

// engineEnv holds the store and engine used by the import and serve
// commands.
type engineEnv struct {
	Store  parish.Store
	Engine *reconcile.Engine
}

// Close releases the store.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine validates config for mode, opens and migrates the store and
// wires the provider clients. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	table, err := country.LoadTable(cfg.Import.ProfilesPath)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	timeout := time.Duration(cfg.Google.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: timeout}

	breakers := newServiceBreakers()
	retry := resilience.DefaultRetryConfig().WithAttempts(cfg.Google.MaxRetries)
	placesClient := google.NewClient(cfg.Google.Key,
		google.WithBaseURL(cfg.Google.BaseURL),
		google.WithHTTPClient(hc),
		google.WithRetry(retry),
		google.WithBreaker(breakers.Get("places")),
	)

	sheetsKey := cfg.Sheets.Key
	if sheetsKey == "" {
		sheetsKey = cfg.Google.Key
	}
	opts := []reconcile.Option{reconcile.WithHTTPClient(&http.Client{Timeout: 60 * time.Second})}
	if sheetsKey != "" {
		opts = append(opts, reconcile.WithSheets(sheets.NewClient(sheetsKey,
			sheets.WithBaseURL(cfg.Sheets.BaseURL),
			sheets.WithBreaker(breakers.Get("sheets")),
		)))
	} else {
		zap.L().Debug("no sheets or google key set, spreadsheet imports disabled")
	}

	engine := reconcile.New(reconcile.Config{
		APIKey:            cfg.Google.Key,
		PhotoBaseURL:      cfg.Google.BaseURL,
		PhotoMaxWidth:     cfg.Import.PhotoMaxWidth,
		SearchRateLimit:   cfg.Import.SearchRateLimit,
		SearchConcurrency: cfg.Import.SearchConcurrency,
		DetailConcurrency: cfg.Import.DetailConcurrency,
		RunTimeout:        cfg.Import.RunTimeout(),
		WriteTimeout:      cfg.Import.WriteTimeout(),
		SheetRange:        cfg.Sheets.Range,
	}, st, placesClient, country.NewResolver(table), opts...)

	return &engineEnv{Store: st, Engine: engine}, nil
}
