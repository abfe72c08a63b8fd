package parish

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRecord(sourceID string) *Record {
	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	return &Record{
		Name:         "Celestial Church of Christ, Ikeja Parish",
		Address:      Address{Street: "12 Obafemi Awolowo Way", City: "Ikeja", Province: "Lagos", Country: "NG"},
		Latitude:     6.601,
		Longitude:    3.351,
		Phone:        "+234 1 000 0000",
		Photos:       []string{"https://example.com/p1.jpg"},
		OpeningHours: map[string]string{"sunday": "7:00 AM - 1:00 PM"},
		CreatedAt:    now,
		UpdatedAt:    now,
		ImportSource: SourceGooglePlaces,
		SourceID:     sourceID,
	}
}

func TestSQLite_CreateAndFind(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.Create(ctx, sampleRecord("abc123"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := st.FindBySourceID(ctx, SourceGooglePlaces, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Celestial Church of Christ, Ikeja Parish", got.Name)
	assert.Equal(t, "Ikeja", got.Address.City)
	assert.Equal(t, "NG", got.Address.Country)
	assert.Equal(t, []string{"https://example.com/p1.jpg"}, got.Photos)
	assert.Equal(t, "7:00 AM - 1:00 PM", got.OpeningHours["sunday"])
	assert.True(t, got.CreatedAt.Equal(time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)))
}

func TestSQLite_FindMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.FindBySourceID(context.Background(), SourceGooglePlaces, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_FindScopedBySource(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Create(ctx, sampleRecord("shared-id"))
	require.NoError(t, err)

	got, err := st.FindBySourceID(ctx, SourceGoogleMyMaps, "shared-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_EmptyContainersRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := sampleRecord("bare")
	r.Photos = nil
	r.OpeningHours = nil
	id, err := st.Create(ctx, r)
	require.NoError(t, err)

	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, got.Photos)
	assert.NotNil(t, got.OpeningHours)
	assert.Empty(t, got.Photos)
	assert.Empty(t, got.OpeningHours)
}

func TestSQLite_Update(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := sampleRecord("abc123")
	_, err := st.Create(ctx, r)
	require.NoError(t, err)

	r.Website = "https://ccc.example.org"
	r.UpdatedAt = r.CreatedAt.Add(time.Hour)
	require.NoError(t, st.Update(ctx, r))

	got, err := st.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://ccc.example.org", got.Website)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestSQLite_UpdateMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	r := sampleRecord("ghost")
	r.ID = "does-not-exist"
	err := st.Update(context.Background(), r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	up := eris.Unpack(err)
	assert.Nil(t, up.ErrExternal, "not-found must be an eris root with a stack")
	assert.Equal(t, "parish not found", up.ErrRoot.Msg)
	assert.NotEmpty(t, up.ErrRoot.Stack)
}

func TestSQLite_BatchUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleRecord("a")
	b := sampleRecord("b")
	_, err := st.Create(ctx, a)
	require.NoError(t, err)
	_, err = st.Create(ctx, b)
	require.NoError(t, err)

	a.LeaderName = "Leader A"
	b.LeaderName = "Leader B"
	require.NoError(t, st.BatchUpdate(ctx, []*Record{a, b}))

	gotA, err := st.Get(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := st.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Leader A", gotA.LeaderName)
	assert.Equal(t, "Leader B", gotB.LeaderName)
}

func TestSQLite_BatchUpdateRollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := sampleRecord("a")
	_, err := st.Create(ctx, a)
	require.NoError(t, err)

	a.LeaderName = "changed"
	ghost := sampleRecord("ghost")
	ghost.ID = "missing"

	err = st.BatchUpdate(ctx, []*Record{a, ghost})
	require.Error(t, err)

	got, err := st.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LeaderName)
}

func TestSQLite_ListFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ng := sampleRecord("ng-1")
	ng.Name = "B Parish"
	gh := sampleRecord("gh-1")
	gh.Name = "A Parish"
	gh.Address.Country = "GH"
	mm := sampleRecord("mm-1")
	mm.Name = "C Parish"
	mm.ImportSource = SourceGoogleMyMaps
	for _, r := range []*Record{ng, gh, mm} {
		_, err := st.Create(ctx, r)
		require.NoError(t, err)
	}

	all, err := st.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A Parish", all[0].Name)

	byCountry, err := st.List(ctx, ListFilter{Country: "NG"})
	require.NoError(t, err)
	assert.Len(t, byCountry, 2)

	bySource, err := st.List(ctx, ListFilter{Source: SourceGoogleMyMaps})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "mm-1", bySource[0].SourceID)

	page, err := st.List(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "B Parish", page[0].Name)
}

func TestSQLite_Runs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "places", "NG")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)

	run.Status = RunStatusComplete
	run.Imported = 3
	run.Message = "Successfully imported 3 parishes"
	require.NoError(t, st.CompleteRun(ctx, run))
	assert.NotNil(t, run.CompletedAt)

	missing := &Run{ID: "nope", Status: RunStatusFailed}
	assert.Error(t, st.CompleteRun(ctx, missing))
}
