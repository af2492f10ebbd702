/*
inventory.go - The emissions dataset behind a Store

PURPOSE:
  Inventory hosts the engine: every write reads the current dataset, runs
  the same rollup/validate/merge functions a client would, and commits the
  result through the Store only if they succeed.

SINGLE WRITER:
  Read-validate-write is serialised by a mutex, so within one process a
  duplicate-year check can never race the write it guards. Across processes
  sharing a database there is no locking: the storage layer is
  last-write-wins, consistent with the replace-on-conflict import policy.

USAGE:
  inv := emissions.NewInventory(store)
  rec, err := inv.Create(ctx, emissions.Record{Year: 2024, Scope1: emissions.Float(80)})
  report, err := inv.ImportCSV(ctx, file, "upload.csv")

IMPORT HISTORY:
  When the store implements ImportCommitter, an import's records and its
  run are written in one transaction. Otherwise the run is saved after the
  records; failing to save it is logged at warn and does not fail the
  import, since the records are already committed.

SEE ALSO:
  - merge.go: AddRecord, UpdateRecord, DeleteRecord, ImportBatch
  - store.go: Store and ImportLog
*/
package emissions

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Inventory applies engine operations against a Store.
type Inventory struct {
	mu     sync.Mutex
	store  Store
	runs   ImportLog
	logger zerolog.Logger
	now    func() time.Time
}

// InventoryOption configures an Inventory.
type InventoryOption func(*Inventory)

// WithLogger sets the logger used for failures that do not fail the call.
func WithLogger(logger zerolog.Logger) InventoryOption {
	return func(inv *Inventory) { inv.logger = logger }
}

// NewInventory wraps store. If store also implements ImportLog, bulk imports
// are recorded in it.
func NewInventory(store Store, opts ...InventoryOption) *Inventory {
	inv := &Inventory{store: store, logger: zerolog.Nop(), now: time.Now}
	if log, ok := store.(ImportLog); ok {
		inv.runs = log
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// List returns the dataset ascending by year.
func (inv *Inventory) List(ctx context.Context) (Dataset, error) {
	records, err := inv.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return Dataset(records).Sorted(), nil
}

// Get returns the record for year.
func (inv *Inventory) Get(ctx context.Context, year int) (Record, error) {
	return inv.store.Get(ctx, year)
}

// Create adds a new year. The stored record is returned with its rolled-up
// totals.
func (inv *Inventory) Create(ctx context.Context, r Record) (Record, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	current, err := inv.store.List(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("list records: %w", err)
	}
	next, err := AddRecord(current, r)
	if err != nil {
		return Record{}, err
	}
	saved := next[len(next)-1]
	if err := inv.store.Put(ctx, saved); err != nil {
		return Record{}, fmt.Errorf("save year %d: %w", saved.Year, err)
	}
	return saved, nil
}

// Update replaces the record stored under priorYear. Renaming to a year held
// by another record is refused.
func (inv *Inventory) Update(ctx context.Context, priorYear int, r Record) (Record, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	current, err := inv.store.List(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("list records: %w", err)
	}
	next, err := UpdateRecord(current, priorYear, r)
	if err != nil {
		return Record{}, err
	}
	saved := next[Dataset(current).Find(priorYear)]
	if err := inv.store.Replace(ctx, priorYear, saved); err != nil {
		return Record{}, fmt.Errorf("save year %d: %w", saved.Year, err)
	}
	return saved, nil
}

// Delete removes the record for year.
func (inv *Inventory) Delete(ctx context.Context, year int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	current, err := inv.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	if _, err := DeleteRecord(current, year); err != nil {
		return err
	}
	if err := inv.store.Delete(ctx, year); err != nil {
		return fmt.Errorf("delete year %d: %w", year, err)
	}
	return nil
}

// BulkImport merges records into the dataset. With overwrite false, any
// year that already exists aborts the import with *ImportConflictError.
// source labels the run in the import log.
func (inv *Inventory) BulkImport(ctx context.Context, records []Record, overwrite bool, source string) (ImportReport, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	current, err := inv.store.List(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("list records: %w", err)
	}
	if !overwrite {
		if years := ConflictingYears(current, records); len(years) > 0 {
			return ImportReport{}, &ImportConflictError{Years: years}
		}
	}

	result, err := ImportBatch(current, records, ReplaceOnConflict)
	if err != nil {
		return ImportReport{}, err
	}

	changed := make([]Record, 0, len(records))
	for _, r := range result.Records {
		if containsYear(result.Report.CreatedYears, r.Year) || containsYear(result.Report.UpdatedYears, r.Year) {
			changed = append(changed, r)
		}
	}
	run := inv.newRun(source, len(records), result.Report)
	if err := inv.commit(ctx, changed, false, run); err != nil {
		return ImportReport{}, fmt.Errorf("save import: %w", err)
	}
	return result.Report, nil
}

// ImportCSV parses CSV with the full field spec and imports it, replacing
// conflicting years.
func (inv *Inventory) ImportCSV(ctx context.Context, in io.Reader, source string) (ImportReport, error) {
	records, err := ParseReader(in, FullFieldSpec())
	if err != nil {
		return ImportReport{}, err
	}
	return inv.BulkImport(ctx, records, true, source)
}

// ExportCSV writes the whole dataset with the full field spec.
func (inv *Inventory) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := inv.List(ctx)
	if err != nil {
		return err
	}
	return WriteCSV(w, records, FullFieldSpec())
}

// Load replaces the whole dataset with records, after the same checks an
// import runs.
func (inv *Inventory) Load(ctx context.Context, records []Record, source string) (ImportReport, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	result, err := ImportBatch(nil, records, ReplaceOnConflict)
	if err != nil {
		return ImportReport{}, err
	}
	run := inv.newRun(source, len(records), result.Report)
	if err := inv.commit(ctx, result.Records, true, run); err != nil {
		return ImportReport{}, fmt.Errorf("replace dataset: %w", err)
	}
	return result.Report, nil
}

// ImportRuns returns the most recent import runs, newest first.
func (inv *Inventory) ImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	if inv.runs == nil {
		return []ImportRun{}, nil
	}
	return inv.runs.ListImportRuns(ctx, limit)
}

func (inv *Inventory) newRun(source string, rows int, report ImportReport) ImportRun {
	return ImportRun{
		ID:           uuid.NewString(),
		Source:       source,
		RowCount:     rows,
		CreatedYears: report.CreatedYears,
		UpdatedYears: report.UpdatedYears,
		CreatedAt:    inv.now().UTC(),
	}
}

// commit writes an import's records, replacing the dataset when replace is
// set, and records run in the import log.
func (inv *Inventory) commit(ctx context.Context, records []Record, replace bool, run ImportRun) error {
	if committer, ok := inv.store.(ImportCommitter); ok && inv.runs != nil {
		if replace {
			return committer.ReplaceAllWithRun(ctx, records, run)
		}
		return committer.PutBatchWithRun(ctx, records, run)
	}

	write := inv.store.PutBatch
	if replace {
		write = inv.store.ReplaceAll
	}
	if err := write(ctx, records); err != nil {
		return err
	}
	if inv.runs == nil {
		return nil
	}
	if err := inv.runs.SaveImportRun(ctx, run); err != nil {
		inv.logger.Warn().
			Err(err).
			Str("run", run.ID).
			Str("source", run.Source).
			Msg("import committed but not recorded in history")
	}
	return nil
}

func containsYear(years []int, year int) bool {
	for _, y := range years {
		if y == year {
			return true
		}
	}
	return false
}
