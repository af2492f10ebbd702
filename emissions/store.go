/*
store.go - Persistence interfaces for emission records

PURPOSE:
  Defines the boundary between the engine and whatever keeps the records.
  The engine never does its own I/O: Inventory reads through a Store, runs
  the rollup/validate/merge logic, then writes the result back.

KEY INTERFACES:
  Store:     one row per year, keyed by year
  ImportLog: optional history of bulk imports
  ImportCommitter: records and their import run in one transaction

ATOMIC BATCHES:
  PutBatch and ReplaceAll are all-or-nothing. A 12-row CSV import either
  lands completely or not at all.

CONCURRENCY:
  Implementations must be safe for concurrent use. Two writers racing on
  the same year resolve last-write-wins at this layer; Inventory serialises
  writers within one process.

IMPLEMENTATIONS:
  - emissions/store/memory.go: in-memory, for tests and demos
  - store/sqlite/sqlite.go: default local database
  - store/postgres/postgres.go: shared backend

SEE ALSO:
  - inventory.go: the only caller
*/
package emissions

import (
	"context"
	"time"
)

// Store persists records keyed by year.
type Store interface {
	// List returns every record. Order is unspecified.
	List(ctx context.Context) ([]Record, error)

	// Get returns the record for year or ErrRecordNotFound.
	Get(ctx context.Context, year int) (Record, error)

	// Put inserts r, or overwrites the record with the same year.
	Put(ctx context.Context, r Record) error

	// Replace removes the record at priorYear and stores r in one step.
	// Returns ErrRecordNotFound if priorYear does not exist.
	Replace(ctx context.Context, priorYear int, r Record) error

	// Delete removes the record for year or returns ErrRecordNotFound.
	Delete(ctx context.Context, year int) error

	// PutBatch upserts all records atomically.
	PutBatch(ctx context.Context, records []Record) error

	// ReplaceAll swaps the whole dataset for records atomically.
	ReplaceAll(ctx context.Context, records []Record) error
}

// ImportRun is one entry of the import history.
type ImportRun struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	RowCount     int       `json:"rowCount"`
	CreatedYears []int     `json:"createdYears"`
	UpdatedYears []int     `json:"updatedYears"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ImportLog records import runs. Stores may implement it alongside Store.
type ImportLog interface {
	SaveImportRun(ctx context.Context, run ImportRun) error

	// ListImportRuns returns the most recent runs first. limit <= 0 means all.
	ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error)
}

// ImportCommitter writes an import's records and its run in one
// transaction, so the history never disagrees with the dataset. Stores that
// keep an ImportLog should implement it.
type ImportCommitter interface {
	// PutBatchWithRun upserts records and saves run atomically.
	PutBatchWithRun(ctx context.Context, records []Record, run ImportRun) error

	// ReplaceAllWithRun swaps the dataset for records and saves run atomically.
	ReplaceAllWithRun(ctx context.Context, records []Record, run ImportRun) error
}
