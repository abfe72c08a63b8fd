package parish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

var recordColumns = []string{
	"id", "name", "street", "city", "province", "postal_code", "country", "latitude", "longitude",
	"phone", "email", "website", "leader_name", "description", "photos", "opening_hours",
	"created_at", "updated_at", "import_source", "source_id",
}

// insertArgs lists the INSERT arguments for r. The id, JSON columns and
// timestamps are matched loosely.
func insertArgs(r *Record) []any {
	return []any{
		pgxmock.AnyArg(), r.Name, r.Address.Street, r.Address.City, r.Address.Province, r.Address.PostalCode, r.Address.Country,
		r.Latitude, r.Longitude, r.Phone, r.Email, r.Website, r.LeaderName, r.Description,
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), string(r.ImportSource), r.SourceID,
	}
}

// updateArgs lists the UPDATE arguments for r, keyed by r.ID.
func updateArgs(r *Record) []any {
	return []any{
		r.Name, r.Address.Street, r.Address.City, r.Address.Province, r.Address.PostalCode, r.Address.Country,
		r.Latitude, r.Longitude, r.Phone, r.Email, r.Website, r.LeaderName, r.Description,
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), r.ID,
	}
}

func TestPostgresStore_FindBySourceID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM parishes WHERE import_source = \$1 AND source_id = \$2`).
		WithArgs("google_places", "abc123").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.FindBySourceID(context.Background(), SourceGooglePlaces, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindBySourceID_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(recordColumns).AddRow(
		"id-1", "CCC Parish", "1 Road", "Ikeja", "Lagos", "", "NG", 6.6, 3.3,
		"", "", "", "Leader", "", []byte(`["https://p/1.jpg"]`), []byte(`{"Sunday":"7 AM"}`),
		created, created, "google_places", "abc123",
	)
	mock.ExpectQuery(`FROM parishes WHERE import_source`).
		WithArgs("google_places", "abc123").
		WillReturnRows(rows)

	got, err := s.FindBySourceID(context.Background(), SourceGooglePlaces, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, "Leader", got.LeaderName)
	assert.Equal(t, SourceGooglePlaces, got.ImportSource)
	assert.Equal(t, []string{"https://p/1.jpg"}, got.Photos)
	assert.Equal(t, map[string]string{"sunday": "7 AM"}, got.OpeningHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	r := sampleRecord("abc123")
	mock.ExpectExec(`INSERT INTO parishes`).
		WithArgs(insertArgs(r)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.Create(context.Background(), r)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	r := sampleRecord("abc123")
	mock.ExpectExec(`INSERT INTO parishes`).
		WithArgs(insertArgs(r)...).
		WillReturnError(errors.New("connection reset"))

	_, err := s.Create(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert parish abc123")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	r := sampleRecord("abc123")
	r.ID = "missing"
	mock.ExpectExec(`UPDATE parishes SET`).
		WithArgs(updateArgs(r)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.Update(context.Background(), r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BatchUpdate_Commits(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	a, b := sampleRecord("a"), sampleRecord("b")
	a.ID, b.ID = "id-a", "id-b"

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE parishes SET`).WithArgs(updateArgs(a)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE parishes SET`).WithArgs(updateArgs(b)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.BatchUpdate(context.Background(), []*Record{a, b}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BatchUpdate_RollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	a := sampleRecord("a")
	a.ID = "id-a"

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE parishes SET`).WithArgs(updateArgs(a)...).WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := s.BatchUpdate(context.Background(), []*Record{a, sampleRecord("b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch update")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BatchUpdate_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.BatchUpdate(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM parishes WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(recordColumns).AddRow(
		"id-1", "A Parish", "", "", "", "", "NG", 0.0, 0.0,
		"", "", "", "", "", []byte(`[]`), []byte(`{}`),
		created, created, "manual", "row_1",
	)
	mock.ExpectQuery(`AND country = \$1 AND import_source = \$2 ORDER BY name, id LIMIT \$3 OFFSET \$4`).
		WithArgs("NG", "manual", 10, 20).
		WillReturnRows(rows)

	got, err := s.List(context.Background(), ListFilter{Country: "NG", Source: SourceManual, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A Parish", got[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Runs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO import_runs`).
		WithArgs(pgxmock.AnyArg(), "places", "NG", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE import_runs SET`).
		WithArgs("complete", 3, 1, 2, 0, "Imported 3 new parishes", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	run, err := s.CreateRun(context.Background(), "places", "NG")
	require.NoError(t, err)

	run.Status = RunStatusComplete
	run.Imported, run.Updated, run.Rejected = 3, 1, 2
	run.Message = "Imported 3 new parishes"
	require.NoError(t, s.CompleteRun(context.Background(), run))
	assert.NotNil(t, run.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS parishes`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
