/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements emissions.Store and emissions.ImportLog using SQLite. This is
  the default backend of the server and the CLI. store/postgres carries the
  same schema for a shared database.

INTERFACES IMPLEMENTED:
  emissions.Store:     one row per year
  emissions.ImportLog: import run history

KEY TABLES:
  emissions:   one row per year, NULL for values that were not reported
  import_runs: one row per bulk import or dataset load

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Two processes writing the same file
  resolve last-write-wins; the engine does not lock across processes.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/emissions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  inv := emissions.NewInventory(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - emissions/store.go: Interface definitions
  - emissions/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/emissions-engine/emissions"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// column maps a table column to a record field.
type column struct {
	name  string
	field emissions.Field
}

var columns = []column{
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- One row per reporting year
	CREATE TABLE IF NOT EXISTS emissions (
		year INTEGER PRIMARY KEY CHECK (year BETWEEN 1900 AND 2100),
		scope1 REAL,
		scope2 REAL,
		scope3 REAL,
		natural_gas_heating REAL,
		diesel_generator REAL,
		diesel_fleet REAL,
		ny_grid_electricity REAL,
		mf_grid_electricity REAL,
		business_travel REAL,
		employee_commuting REAL,
		logistics REAL,
		waste REAL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Import history
	CREATE TABLE IF NOT EXISTS import_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		created_years_json TEXT NOT NULL,
		updated_years_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_import_runs_created_at
		ON import_runs(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runTimeLayout keeps import_runs.created_at sortable as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// RECORD STORE (emissions.Store interface)
// =============================================================================

func selectColumns() string {
	names := make([]string, 0, len(columns)+1)
	names = append(names, "year")
	for _, c := range columns {
		names = append(names, c.name)
	}
	return strings.Join(names, ", ")
}

// List returns all records ordered by year.
func (s *Store) List(ctx context.Context) ([]emissions.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns()+" FROM emissions ORDER BY year")
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns()+" FROM emissions WHERE year = ?", year)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return emissions.Record{}, fmt.Errorf("%w: year %d", emissions.ErrRecordNotFound, year)
	}
	return r, err
}

// Put upserts a record.
func (s *Store) Put(ctx context.Context, r emissions.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putTx(ctx, s.db, r)
}

func (s *Store) putTx(ctx context.Context, db execer, r emissions.Record) error {
	names := make([]string, 0, len(columns))
	updates := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+3)
	args = append(args, r.Year)
	for _, c := range columns {
		names = append(names, c.name)
		updates = append(updates, c.name+" = excluded."+c.name)
		args = append(args, nullFloat(r, c.field))
	}
	updates = append(updates, "updated_at = excluded.updated_at")

	now := time.Now().UTC().Format(time.RFC3339)
	args = append(args, now, now)

	query := fmt.Sprintf(`
		INSERT INTO emissions (year, %s, created_at, updated_at)
		VALUES (?%s, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			%s
	`, strings.Join(names, ", "), strings.Repeat(", ?", len(columns)), strings.Join(updates, ",\n\t\t\t"))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save year %d: %w", r.Year, err)
	}
	return nil
}

// Replace moves the record at priorYear to r in one transaction.
func (s *Store) Replace(ctx context.Context, priorYear int, r emissions.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := deleteYear(ctx, sqlTx, priorYear); err != nil {
		return err
	}
	if err := s.putTx(ctx, sqlTx, r); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Delete removes the record for a year.
func (s *Store) Delete(ctx context.Context, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteYear(ctx, s.db, year)
}

func deleteYear(ctx context.Context, db execer, year int) error {
	res, err := db.ExecContext(ctx, "DELETE FROM emissions WHERE year = ?", year)
	if err != nil {
		return fmt.Errorf("failed to delete year %d: %w", year, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: year %d", emissions.ErrRecordNotFound, year)
	}
	return nil
}

// PutBatch upserts records atomically.
func (s *Store) PutBatch(ctx context.Context, records []emissions.Record) error {
	return s.writeBatch(ctx, records, false, nil)
}

// ReplaceAll swaps the dataset atomically.
func (s *Store) ReplaceAll(ctx context.Context, records []emissions.Record) error {
	return s.writeBatch(ctx, records, true, nil)
}

// PutBatchWithRun upserts records and saves run in one transaction.
func (s *Store) PutBatchWithRun(ctx context.Context, records []emissions.Record, run emissions.ImportRun) error {
	return s.writeBatch(ctx, records, false, &run)
}

// ReplaceAllWithRun swaps the dataset and saves run in one transaction.
func (s *Store) ReplaceAllWithRun(ctx context.Context, records []emissions.Record, run emissions.ImportRun) error {
	return s.writeBatch(ctx, records, true, &run)
}

// writeBatch writes records, and run when it is non-nil, in one transaction.
// With replace set the table is cleared first.
func (s *Store) writeBatch(ctx context.Context, records []emissions.Record, replace bool, run *emissions.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if replace {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM emissions"); err != nil {
			return fmt.Errorf("failed to clear records: %w", err)
		}
	}
	for _, r := range records {
		if err := s.putTx(ctx, sqlTx, r); err != nil {
			return err
		}
	}
	if run != nil {
		if err := saveRun(ctx, sqlTx, *run); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (emissions.Record, error) {
	var r emissions.Record
	values := make([]sql.NullFloat64, len(columns))
	dest := make([]any, 0, len(columns)+1)
	dest = append(dest, &r.Year)
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := row.Scan(dest...); err != nil {
		return emissions.Record{}, err
	}
	for i, c := range columns {
		if values[i].Valid {
			r.Set(c.field, values[i].Float64)
		}
	}
	return r, nil
}

func nullFloat(r emissions.Record, f emissions.Field) sql.NullFloat64 {
	v, ok := r.Get(f)
	return sql.NullFloat64{Float64: v, Valid: ok}
}

// =============================================================================
// IMPORT LOG (emissions.ImportLog interface)
// =============================================================================

// SaveImportRun records an import.
func (s *Store) SaveImportRun(ctx context.Context, run emissions.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRun(ctx, s.db, run)
}

func saveRun(ctx context.Context, db execer, run emissions.ImportRun) error {
	created, err := json.Marshal(yearsOrEmpty(run.CreatedYears))
	if err != nil {
		return err
	}
	updated, err := json.Marshal(yearsOrEmpty(run.UpdatedYears))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO import_runs (id, source, row_count, created_years_json, updated_years_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Source, run.RowCount, string(created), string(updated), run.CreatedAt.UTC().Format(runTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to save import run: %w", err)
	}
	return nil
}

// ListImportRuns returns runs newest first. limit <= 0 returns all runs.
func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]emissions.ImportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, source, row_count, created_years_json, updated_years_json, created_at FROM import_runs ORDER BY created_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer rows.Close()

	runs := []emissions.ImportRun{}
	for rows.Next() {
		var (
			run                  emissions.ImportRun
			created, updated, at string
		)
		if err := rows.Scan(&run.ID, &run.Source, &run.RowCount, &created, &updated, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(created), &run.CreatedYears); err != nil {
			return nil, fmt.Errorf("import run %s: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(updated), &run.UpdatedYears); err != nil {
			return nil, fmt.Errorf("import run %s: %w", run.ID, err)
		}
		run.CreatedAt, _ = time.Parse(runTimeLayout, at)
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
