//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parish-cli/internal/reconcile"
)

type fakeImporter struct {
	mu          sync.Mutex
	countries   []string
	descriptors []reconcile.SourceDescriptor
	err         error
}

func (f *fakeImporter) ImportFromPlaceSearch(_ context.Context, code string) (*reconcile.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countries = append(f.countries, code)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Result{ImportedCount: 3, Message: "Imported 3 new parishes"}, nil
}

func (f *fakeImporter) ImportFromStructuredSource(_ context.Context, d reconcile.SourceDescriptor) (*reconcile.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptors = append(f.descriptors, d)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Result{ImportedCount: 2, Message: "Successfully imported 2 parishes from " + d.Kind}, nil
}

func (f *fakeImporter) structuredCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.descriptors)
}

func post(t *testing.T, h http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h := newRouter(&fakeImporter{}, "")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Metrics(t *testing.T) {
	h := newRouter(&fakeImporter{}, "")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRouter_ImportPlaces(t *testing.T) {
	imp := &fakeImporter{}
	h := newRouter(imp, "")

	rr := post(t, h, "/import/places", map[string]string{"countryCode": "NG"}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var res reconcile.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 3, res.ImportedCount)
	assert.Equal(t, "Imported 3 new parishes", res.Message)
	assert.Equal(t, []string{"NG"}, imp.countries)
}

func TestRouter_ImportStructured(t *testing.T) {
	imp := &fakeImporter{}
	h := newRouter(imp, "")

	rr := post(t, h, "/import/structured", map[string]string{"kind": "csv", "location": "/data/p.csv"}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["importedCount"])
	require.Len(t, imp.descriptors, 1)
	assert.Equal(t, reconcile.SourceDescriptor{Kind: "csv", Location: "/data/p.csv"}, imp.descriptors[0])
}

func TestRouter_InvalidBody(t *testing.T) {
	h := newRouter(&fakeImporter{}, "")

	req := httptest.NewRequest(http.MethodPost, "/import/places", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestRouter_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing key", reconcile.ErrMissingAPIKey, http.StatusBadRequest},
		{"country required", reconcile.ErrCountryRequired, http.StatusBadRequest},
		{"unknown country", eris.Wrap(reconcile.ErrUnknownCountry, "XX"), http.StatusBadRequest},
		{"invalid source", eris.Wrap(reconcile.ErrInvalidSource, "unknown kind"), http.StatusBadRequest},
		{"store failure", eris.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&fakeImporter{err: tt.err}, "")
			rr := post(t, h, "/import/places", map[string]string{"countryCode": "NG"}, "")
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRouter_InternalErrorHidesDetail(t *testing.T) {
	h := newRouter(&fakeImporter{err: eris.New("dsn password=secret")}, "")

	rr := post(t, h, "/import/structured", map[string]string{"kind": "csv", "location": "x.csv"}, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret")
}

func TestRouter_BearerToken(t *testing.T) {
	imp := &fakeImporter{}
	h := newRouter(imp, "s3cret")

	rr := post(t, h, "/import/places", map[string]string{"countryCode": "NG"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = post(t, h, "/import/places", map[string]string{"countryCode": "NG"}, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = post(t, h, "/import/places", map[string]string{"countryCode": "NG"}, "s3cret")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, imp.countries, 1)

	// Health stays open.
	hr := httptest.NewRecorder()
	h.ServeHTTP(hr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, hr.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newRouter(&fakeImporter{}, "")

	req := httptest.NewRequest(http.MethodOptions, "/import/places", nil)
	req.Header.Set("Origin", "https://admin.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunMyMapsSchedule(t *testing.T) {
	imp := &fakeImporter{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runMyMapsSchedule(ctx, imp, "https://example.org/map.geojson", 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return imp.structuredCalls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("schedule did not stop after cancel")
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	assert.Equal(t, reconcile.KindMyMaps, imp.descriptors[0].Kind)
	assert.Equal(t, "https://example.org/map.geojson", imp.descriptors[0].Location)
}
