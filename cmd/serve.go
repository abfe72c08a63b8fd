package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parish-cli/internal/reconcile"
)

var servePort int

// importer is the part of *reconcile.Engine the HTTP handlers call.
type importer interface {
	ImportFromPlaceSearch(ctx context.Context, countryCode string) (*reconcile.Result, error)
	ImportFromStructuredSource(ctx context.Context, d reconcile.SourceDescriptor) (*reconcile.Result, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP import server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Schedule.MyMapsURL != "" {
			interval, _ := time.ParseDuration(cfg.Schedule.MyMapsInterval)
			go runMyMapsSchedule(ctx, env.Engine, cfg.Schedule.MyMapsURL, interval)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(env.Engine, cfg.Server.Token),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(imp importer, token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if token != "" {
			r.Use(bearerAuth(token))
		}
		r.Post("/import/places", handleImportPlaces(imp))
		r.Post("/import/structured", handleImportStructured(imp))
	})

	return r
}

func handleImportPlaces(imp importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CountryCode string `json:"countryCode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := imp.ImportFromPlaceSearch(r.Context(), req.CountryCode)
		if err != nil {
			writeImportError(w, err, zap.String("country", req.CountryCode))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleImportStructured(imp importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d reconcile.SourceDescriptor
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res, err := imp.ImportFromStructuredSource(r.Context(), d)
		if err != nil {
			writeImportError(w, err, zap.String("kind", d.Kind))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeImportError(w http.ResponseWriter, err error, field zap.Field) {
	if isClientError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zap.L().Error("import request failed", field, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "import failed")
}

func isClientError(err error) bool {
	return errors.Is(err, reconcile.ErrMissingAPIKey) ||
		errors.Is(err, reconcile.ErrCountryRequired) ||
		errors.Is(err, reconcile.ErrUnknownCountry) ||
		errors.Is(err, reconcile.ErrInvalidSource)
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// runMyMapsSchedule imports the My Maps feed once at start and then every
// interval until ctx is done.
func runMyMapsSchedule(ctx context.Context, imp importer, url string, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	log := zap.L().With(zap.String("url", url), zap.Duration("interval", interval))
	log.Info("mymaps schedule started")

	d := reconcile.SourceDescriptor{Kind: reconcile.KindMyMaps, Location: url}
	sync := func() {
		res, err := imp.ImportFromStructuredSource(ctx, d)
		if err != nil {
			log.Error("scheduled mymaps import failed", zap.Error(err))
			return
		}
		log.Info("scheduled mymaps import complete",
			zap.Int("imported", res.ImportedCount),
			zap.Int("updated", res.UpdatedCount),
			zap.Int("failed", res.FailedCount),
		)
	}

	sync()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("mymaps schedule stopped")
			return
		case <-ticker.C:
			sync()
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
