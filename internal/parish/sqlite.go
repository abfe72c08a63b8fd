package parish

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record addressed by id does not exist.
var ErrNotFound = eris.New("parish not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// The (import_source, source_id) index is intentionally non-unique: two
// concurrent runs may both miss the lookup and insert.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS parishes (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	street        TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	province      TEXT NOT NULL DEFAULT '',
	postal_code   TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	latitude      REAL NOT NULL DEFAULT 0,
	longitude     REAL NOT NULL DEFAULT 0,
	phone         TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	leader_name   TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	photos        TEXT NOT NULL DEFAULT '[]',
	opening_hours TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	import_source TEXT NOT NULL,
	source_id     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS import_runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	target       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	imported     INTEGER NOT NULL DEFAULT 0,
	updated      INTEGER NOT NULL DEFAULT 0,
	rejected     INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_parishes_source ON parishes(import_source, source_id);
CREATE INDEX IF NOT EXISTS idx_parishes_country ON parishes(country);
CREATE INDEX IF NOT EXISTS idx_import_runs_started_at ON import_runs(started_at);
`

const parishColumns = `id, name, street, city, province, postal_code, country, latitude, longitude,
	phone, email, website, leader_name, description, photos, opening_hours,
	created_at, updated_at, import_source, source_id`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindBySourceID(ctx context.Context, source Source, sourceID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+parishColumns+` FROM parishes WHERE import_source = ? AND source_id = ? ORDER BY created_at LIMIT 1`,
		string(source), sourceID,
	)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find %s/%s", source, sourceID)
	}
	return r, nil
}

func (s *SQLiteStore) Create(ctx context.Context, r *Record) (string, error) {
	r.Normalize()
	id := uuid.New().String()

	photos, hours, err := encodeContainers(r)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: encode record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO parishes (`+parishColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Name, r.Address.Street, r.Address.City, r.Address.Province, r.Address.PostalCode, r.Address.Country,
		r.Latitude, r.Longitude, r.Phone, r.Email, r.Website, r.LeaderName, r.Description,
		photos, hours, r.CreatedAt.UTC(), r.UpdatedAt.UTC(), string(r.ImportSource), r.SourceID,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert parish %s", r.SourceID)
	}
	r.ID = id
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, r *Record) error {
	return s.update(ctx, s.db, r)
}

// BatchUpdate applies all updates in one transaction; any failure rolls
// back the whole batch.
func (s *SQLiteStore) BatchUpdate(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range records {
		if err := s.update(ctx, tx, r); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit batch")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) update(ctx context.Context, ex execer, r *Record) error {
	r.Normalize()
	photos, hours, err := encodeContainers(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode record")
	}

	// created_at, import_source and source_id are never rewritten.
	res, err := ex.ExecContext(ctx,
		`UPDATE parishes SET name = ?, street = ?, city = ?, province = ?, postal_code = ?, country = ?,
			latitude = ?, longitude = ?, phone = ?, email = ?, website = ?, leader_name = ?, description = ?,
			photos = ?, opening_hours = ?, updated_at = ?
		 WHERE id = ?`,
		r.Name, r.Address.Street, r.Address.City, r.Address.Province, r.Address.PostalCode, r.Address.Country,
		r.Latitude, r.Longitude, r.Phone, r.Email, r.Website, r.LeaderName, r.Description,
		photos, hours, r.UpdatedAt.UTC(), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update parish %s", r.ID)
	}
	return checkRowsAffected(res, r.ID)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+parishColumns+` FROM parishes WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	query := `SELECT ` + parishColumns + ` FROM parishes WHERE 1=1`
	var args []any

	if filter.Country != "" {
		query += ` AND country = ?`
		args = append(args, filter.Country)
	}
	if filter.Source != "" {
		query += ` AND import_source = ?`
		args = append(args, string(filter.Source))
	}
	query += ` ORDER BY name, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parishes")
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parish")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list parishes iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind, target string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Target:    target,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, kind, target, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Target, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET status = ?, imported = ?, updated = ?, rejected = ?, failed = ?, message = ?, completed_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Imported, run.Updated, run.Rejected, run.Failed, run.Message, now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	return checkRowsAffected(res, run.ID)
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*Record, error) {
	var r Record
	var source, photos, hours string
	err := row.Scan(
		&r.ID, &r.Name, &r.Address.Street, &r.Address.City, &r.Address.Province, &r.Address.PostalCode,
		&r.Address.Country, &r.Latitude, &r.Longitude, &r.Phone, &r.Email, &r.Website, &r.LeaderName,
		&r.Description, &photos, &hours, &r.CreatedAt, &r.UpdatedAt, &source, &r.SourceID,
	)
	if err != nil {
		return nil, err
	}
	r.ImportSource = Source(source)
	if err := decodeContainers(&r, []byte(photos), []byte(hours)); err != nil {
		return nil, err
	}
	return &r, nil
}

func encodeContainers(r *Record) (string, string, error) {
	photos, err := json.Marshal(r.Photos)
	if err != nil {
		return "", "", err
	}
	hours, err := json.Marshal(r.OpeningHours)
	if err != nil {
		return "", "", err
	}
	return string(photos), string(hours), nil
}

func decodeContainers(r *Record, photos, hours []byte) error {
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &r.Photos); err != nil {
			return eris.Wrap(err, "unmarshal photos")
		}
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &r.OpeningHours); err != nil {
			return eris.Wrap(err, "unmarshal opening hours")
		}
	}
	r.Normalize()
	return nil
}
