/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces, for deployments where several engine processes share one dataset.

INTERFACES IMPLEMENTED:
  emissions.Store:     one row per year
  emissions.ImportLog: import run history

QUERIES:
  Statements are built with squirrel using $n placeholders and executed on
  a pgx connection pool.

CONCURRENCY:
  Writes from different processes are last-write-wins. Each Inventory still
  serialises its own read-validate-write.

CONNECTING:
  Open retries the initial ping with exponential backoff so the server can
  start alongside its database.

SEE ALSO:
  - store/sqlite/sqlite.go: same schema on SQLite
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/emissions-engine/emissions"
)

const (
	tableEmissions  = "emissions"
	tableImportRuns = "import_runs"
)

// Store implements emissions.Store and emissions.ImportLog on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Options tune Open.
type Options struct {
	// ConnectRetries is how many times the first ping is retried.
	ConnectRetries uint64
	// MaxConns caps the pool size. Zero keeps the pgx default.
	MaxConns int32
}

// Open connects to dsn, retrying until the database answers, and migrates
// the schema.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	var pool *pgxpool.Pool
	err = backoff.Retry(
		func() error {
			p, err := pgxpool.NewWithConfig(ctx, cfg)
			if err != nil {
				return backoff.Permanent(err)
			}
			if err := p.Ping(ctx); err != nil {
				p.Close()
				return fmt.Errorf("ping: %w", err)
			}
			pool = p
			return nil
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.ConnectRetries),
			ctx,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS emissions (
		year INTEGER PRIMARY KEY CHECK (year BETWEEN 1900 AND 2100),
		scope1 DOUBLE PRECISION,
		scope2 DOUBLE PRECISION,
		scope3 DOUBLE PRECISION,
		natural_gas_heating DOUBLE PRECISION,
		diesel_generator DOUBLE PRECISION,
		diesel_fleet DOUBLE PRECISION,
		ny_grid_electricity DOUBLE PRECISION,
		mf_grid_electricity DOUBLE PRECISION,
		business_travel DOUBLE PRECISION,
		employee_commuting DOUBLE PRECISION,
		logistics DOUBLE PRECISION,
		waste DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS import_runs (
		id UUID PRIMARY KEY,
		source TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		created_years JSONB NOT NULL,
		updated_years JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_import_runs_created_at
		ON import_runs(created_at DESC);
	`)
	return err
}

// builder returns a squirrel statement builder using $n placeholders.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var columns = []struct {
	name  string
	field emissions.Field
}{
	{"scope1", emissions.FieldScope1},
	{"scope2", emissions.FieldScope2},
	{"scope3", emissions.FieldScope3},
	{"natural_gas_heating", emissions.FieldNaturalGasHeating},
	{"diesel_generator", emissions.FieldDieselGenerator},
	{"diesel_fleet", emissions.FieldDieselFleet},
	{"ny_grid_electricity", emissions.FieldNYGridElectricity},
	{"mf_grid_electricity", emissions.FieldMFGridElectricity},
	{"business_travel", emissions.FieldBusinessTravel},
	{"employee_commuting", emissions.FieldEmployeeCommuting},
	{"logistics", emissions.FieldLogistics},
	{"waste", emissions.FieldWaste},
}

func recordColumns() []string {
	names := make([]string, 0, len(columns)+1)
	names = append(names, "year")
	for _, c := range columns {
		names = append(names, c.name)
	}
	return names
}

// =============================================================================
// RECORD STORE (emissions.Store interface)
// =============================================================================

// List returns all records ordered by year.
func (s *Store) List(ctx context.Context) ([]emissions.Record, error) {
	sql, args, err := builder().Select(recordColumns()...).From(tableEmissions).OrderBy("year").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []emissions.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns the record for a year.
func (s *Store) Get(ctx context.Context, year int) (emissions.Record, error) {
	sql, args, err := builder().Select(recordColumns()...).From(tableEmissions).
		Where(squirrel.Eq{"year": year}).ToSql()
	if err != nil {
		return emissions.Record{}, err
	}
	r, err := scanRecord(s.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return emissions.Record{}, fmt.Errorf("%w: year %d", emissions.ErrRecordNotFound, year)
	}
	return r, err
}

// Put upserts a record.
func (s *Store) Put(ctx context.Context, r emissions.Record) error {
	return upsert(ctx, s.pool, r)
}

// Replace moves the record at priorYear to r in one transaction.
func (s *Store) Replace(ctx context.Context, priorYear int, r emissions.Record) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := deleteYear(ctx, tx, priorYear); err != nil {
			return err
		}
		return upsert(ctx, tx, r)
	})
}

// Delete removes the record for a year.
func (s *Store) Delete(ctx context.Context, year int) error {
	return deleteYear(ctx, s.pool, year)
}

// PutBatch upserts records atomically.
func (s *Store) PutBatch(ctx context.Context, records []emissions.Record) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return upsertAll(ctx, tx, records)
	})
}

// ReplaceAll swaps the dataset atomically.
func (s *Store) ReplaceAll(ctx context.Context, records []emissions.Record) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return replaceAll(ctx, tx, records)
	})
}

// PutBatchWithRun upserts records and saves run in one transaction.
func (s *Store) PutBatchWithRun(ctx context.Context, records []emissions.Record, run emissions.ImportRun) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := upsertAll(ctx, tx, records); err != nil {
			return err
		}
		return saveRun(ctx, tx, run)
	})
}

// ReplaceAllWithRun swaps the dataset and saves run in one transaction.
func (s *Store) ReplaceAllWithRun(ctx context.Context, records []emissions.Record, run emissions.ImportRun) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := replaceAll(ctx, tx, records); err != nil {
			return err
		}
		return saveRun(ctx, tx, run)
	})
}

func upsertAll(ctx context.Context, db querier, records []emissions.Record) error {
	for _, r := range records {
		if err := upsert(ctx, db, r); err != nil {
			return err
		}
	}
	return nil
}

func replaceAll(ctx context.Context, db querier, records []emissions.Record) error {
	if _, err := db.Exec(ctx, "DELETE FROM "+tableEmissions); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return upsertAll(ctx, db, records)
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func upsert(ctx context.Context, db querier, r emissions.Record) error {
	values := make([]any, 0, len(columns)+1)
	values = append(values, r.Year)
	set := "updated_at = now()"
	for _, c := range columns {
		values = append(values, valueOf(r, c.field))
		set += ", " + c.name + " = EXCLUDED." + c.name
	}

	sql, args, err := builder().Insert(tableEmissions).
		Columns(recordColumns()...).
		Values(values...).
		Suffix("ON CONFLICT (year) DO UPDATE SET " + set).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to save year %d: %w", r.Year, err)
	}
	return nil
}

func deleteYear(ctx context.Context, db querier, year int) error {
	sql, args, err := builder().Delete(tableEmissions).Where(squirrel.Eq{"year": year}).ToSql()
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to delete year %d: %w", year, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: year %d", emissions.ErrRecordNotFound, year)
	}
	return nil
}

func valueOf(r emissions.Record, f emissions.Field) *float64 {
	v, ok := r.Get(f)
	if !ok {
		return nil
	}
	return &v
}

func scanRecord(row pgx.Row) (emissions.Record, error) {
	var r emissions.Record
	values := make([]*float64, len(columns))
	dest := make([]any, 0, len(columns)+1)
	dest = append(dest, &r.Year)
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := row.Scan(dest...); err != nil {
		return emissions.Record{}, err
	}
	for i, c := range columns {
		if values[i] != nil {
			r.Set(c.field, *values[i])
		}
	}
	return r, nil
}

// =============================================================================
// IMPORT LOG (emissions.ImportLog interface)
// =============================================================================

// SaveImportRun records an import.
func (s *Store) SaveImportRun(ctx context.Context, run emissions.ImportRun) error {
	return saveRun(ctx, s.pool, run)
}

func saveRun(ctx context.Context, db querier, run emissions.ImportRun) error {
	sql, args, err := builder().Insert(tableImportRuns).
		Columns("id", "source", "row_count", "created_years", "updated_years", "created_at").
		Values(run.ID, run.Source, run.RowCount, yearsOrEmpty(run.CreatedYears), yearsOrEmpty(run.UpdatedYears), run.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to save import run: %w", err)
	}
	return nil
}

// ListImportRuns returns runs newest first. limit <= 0 returns all runs.
func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]emissions.ImportRun, error) {
	q := builder().
		Select("id::text", "source", "row_count", "created_years", "updated_years", "created_at").
		From(tableImportRuns).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer rows.Close()

	runs := []emissions.ImportRun{}
	for rows.Next() {
		var (
			run emissions.ImportRun
			at  time.Time
		)
		if err := rows.Scan(&run.ID, &run.Source, &run.RowCount, &run.CreatedYears, &run.UpdatedYears, &at); err != nil {
			return nil, err
		}
		run.CreatedAt = at.UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func yearsOrEmpty(years []int) []int {
	if years == nil {
		return []int{}
	}
	return years
}
