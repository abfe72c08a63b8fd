//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parish-cli/internal/config"
	"github.com/sells-group/parish-cli/internal/metrics"
	"github.com/sells-group/parish-cli/internal/parish"
	"github.com/sells-group/parish-cli/internal/reconcile"
	"github.com/sells-group/parish-cli/internal/resilience"
)

func testConfig(dsn string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: dsn,
		},
		Import: config.ImportConfig{
			SearchRateLimit:   5,
			SearchConcurrency: 2,
			DetailConcurrency: 2,
		},
	}
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "test.db"))

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = testConfig("")

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Close())

	_, statErr := os.Stat(filepath.Join(tmpDir, "parishes.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitEngine_Structured(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "engine.db"))

	env, err := initEngine(context.Background(), "structured")
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.Engine)

	// No sheets or google key, so spreadsheet imports are rejected.
	_, err = env.Engine.ImportFromStructuredSource(context.Background(), reconcile.SourceDescriptor{
		Kind:     reconcile.KindSpreadsheet,
		Location: "https://docs.google.com/spreadsheets/d/abc123/edit",
	})
	assert.ErrorIs(t, err, reconcile.ErrMissingAPIKey)
}

func TestInitEngine_PlacesRequiresKey(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "engine.db"))

	_, err := initEngine(context.Background(), "places")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google.key is required")
}

func TestInitEngine_BadProfiles(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "engine.db"))
	cfg.Import.ProfilesPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := initEngine(context.Background(), "structured")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "country: read table")
}

func TestInitEngine_FileImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg = testConfig(filepath.Join(dir, "engine.db"))

	path := filepath.Join(dir, "parishes.csv")
	require.NoError(t, os.WriteFile(path, []byte(`Name,Street,City,Province,Country,Phone,Email,Leader,Lat,Lng
CCC Ikeja,12 Allen Ave,Ikeja,Lagos,NG,0803,ikeja@ccc.org,Sup. Evang. Ade,6.6,3.35
CCC Cotonou,,Cotonou,Littoral,BJ,,,,,
`), 0o600))

	d, err := reconcile.DescriptorForFile(path)
	require.NoError(t, err)

	env, err := initEngine(context.Background(), "structured")
	require.NoError(t, err)
	defer env.Close()

	res, err := env.Engine.ImportFromStructuredSource(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ImportedCount)

	records, err := env.Store.List(context.Background(), parish.ListFilter{Country: "NG"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CCC Ikeja", records[0].Name)
	assert.Equal(t, parish.SourceManual, records[0].ImportSource)
}

func TestNewServiceBreakers_ExportsState(t *testing.T) {
	breakers := newServiceBreakers()
	places := breakers.Get("places")

	fail := func(_ context.Context) (int, error) {
		return 0, resilience.NewTransientError(eris.New("places unavailable"), 503)
	}
	for i := 0; i < resilience.DefaultCircuitBreakerConfig().FailureThreshold; i++ {
		_, _ = resilience.ExecuteVal(context.Background(), places, fail)
	}

	assert.Equal(t, resilience.CircuitOpen, places.State())
	assert.InDelta(t, float64(resilience.CircuitOpen),
		testutil.ToFloat64(metrics.CircuitState.WithLabelValues("places")), 0.001)

	places.Reset()
	assert.InDelta(t, float64(resilience.CircuitClosed),
		testutil.ToFloat64(metrics.CircuitState.WithLabelValues("places")), 0.001)
}
