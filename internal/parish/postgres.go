package parish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parish-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects a pool and wraps it in a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS parishes (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name          TEXT NOT NULL,
	street        TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	province      TEXT NOT NULL DEFAULT '',
	postal_code   TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	latitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	phone         TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	leader_name   TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	photos        JSONB NOT NULL DEFAULT '[]',
	opening_hours JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	import_source TEXT NOT NULL,
	source_id     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS import_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind         TEXT NOT NULL,
	target       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	imported     INTEGER NOT NULL DEFAULT 0,
	updated      INTEGER NOT NULL DEFAULT 0,
	rejected     INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_parishes_source ON parishes(import_source, source_id);
CREATE INDEX IF NOT EXISTS idx_parishes_country ON parishes(country);
CREATE INDEX IF NOT EXISTS idx_import_runs_started_at ON import_runs(started_at DESC);
`

const updateParishSQL = `UPDATE parishes SET name = $1, street = $2, city = $3, province = $4, postal_code = $5,
	country = $6, latitude = $7, longitude = $8, phone = $9, email = $10, website = $11, leader_name = $12,
	description = $13, photos = $14, opening_hours = $15, updated_at = $16
 WHERE id = $17`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FindBySourceID(ctx context.Context, source Source, sourceID string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+parishColumns+` FROM parishes WHERE import_source = $1 AND source_id = $2 ORDER BY created_at LIMIT 1`,
		string(source), sourceID,
	)
	r, err := scanPGRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find %s/%s", source, sourceID)
	}
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, r *Record) (string, error) {
	r.Normalize()
	id := uuid.New().String()

	photos, hours, err := encodeContainers(r)
	if err != nil {
		return "", eris.Wrap(err, "postgres: encode record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO parishes (`+parishColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		id, r.Name, r.Address.Street, r.Address.City, r.Address.Province, r.Address.PostalCode, r.Address.Country,
		r.Latitude, r.Longitude, r.Phone, r.Email, r.Website, r.LeaderName, r.Description,
		photos, hours, r.CreatedAt.UTC(), r.UpdatedAt.UTC(), string(r.ImportSource), r.SourceID,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert parish %s", r.SourceID)
	}
	r.ID = id
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *Record) error {
	return s.update(ctx, s.pool, r)
}

// BatchUpdate applies all updates in one transaction.
func (s *PostgresStore) BatchUpdate(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, r := range records {
			if err := s.update(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	return eris.Wrap(err, "postgres: batch update")
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) update(ctx context.Context, ex pgExecer, r *Record) error {
	r.Normalize()
	photos, hours, err := encodeContainers(r)
	if err != nil {
		return eris.Wrap(err, "postgres: encode record")
	}

	tag, err := ex.Exec(ctx, updateParishSQL,
		r.Name, r.Address.Street, r.Address.City, r.Address.Province, r.Address.PostalCode, r.Address.Country,
		r.Latitude, r.Longitude, r.Phone, r.Email, r.Website, r.LeaderName, r.Description,
		photos, hours, r.UpdatedAt.UTC(), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update parish %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update parish %s", r.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+parishColumns+` FROM parishes WHERE id = $1`, id)
	r, err := scanPGRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s", id)
	}
	return r, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	query := `SELECT ` + parishColumns + ` FROM parishes WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Country != "" {
		query += fmt.Sprintf(` AND country = $%d`, argIdx)
		args = append(args, filter.Country)
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND import_source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY name, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parishes")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanPGRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan parish")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list parishes iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, kind, target string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Target:    target,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, kind, target, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Kind, run.Target, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_runs SET status = $1, imported = $2, updated = $3, rejected = $4, failed = $5, message = $6, completed_at = $7
		 WHERE id = $8`,
		string(run.Status), run.Imported, run.Updated, run.Rejected, run.Failed, run.Message, now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: complete run %s", run.ID)
	}
	return nil
}

func scanPGRecord(row scannable) (*Record, error) {
	var r Record
	var source string
	var photos, hours []byte
	err := row.Scan(
		&r.ID, &r.Name, &r.Address.Street, &r.Address.City, &r.Address.Province, &r.Address.PostalCode,
		&r.Address.Country, &r.Latitude, &r.Longitude, &r.Phone, &r.Email, &r.Website, &r.LeaderName,
		&r.Description, &photos, &hours, &r.CreatedAt, &r.UpdatedAt, &source, &r.SourceID,
	)
	if err != nil {
		return nil, err
	}
	r.ImportSource = Source(source)
	if err := decodeContainers(&r, photos, hours); err != nil {
		return nil, err
	}
	return &r, nil
}
