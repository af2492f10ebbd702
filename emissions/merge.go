/*
merge.go - Dataset mutations: create, update, delete and batch import

PURPOSE:
  Every change to a dataset goes through this file. Year is the only
  identity key. Single-record create refuses a colliding year; only
  ImportBatch may overwrite an existing year.

VALIDATE-THEN-APPLY:
  Each operation rolls up and validates first, then builds a new Dataset.
  Inputs are never mutated, so a refused change leaves the caller's dataset
  exactly as it was.

IMPORT POLICY:
  ReplaceOnConflict is the only policy. A conflicting year is replaced
  wholesale by the incoming record (no field-level merge) and reported in
  UpdatedYears; fresh years are appended and reported in CreatedYears.

SEE ALSO:
  - rollup.go, validate.go: the shared rollup/validator pair
  - inventory.go: applies these operations against a Store
*/
package emissions

import (
	"fmt"
	"sort"
)

// ConflictPolicy decides what happens when an imported year already exists.
type ConflictPolicy string

// ReplaceOnConflict overwrites existing years with the imported record.
const ReplaceOnConflict ConflictPolicy = "replace-on-conflict"

// ImportReport lists the years an import created and replaced, ascending.
type ImportReport struct {
	CreatedYears []int `json:"createdYears"`
	UpdatedYears []int `json:"updatedYears"`
}

// MergeResult is the dataset after an import plus what changed.
type MergeResult struct {
	Records Dataset
	Report  ImportReport
}

// ImportBatch merges incoming into existing under policy. Incoming records
// are rolled up and validated; a batch that repeats a year is refused.
func ImportBatch(existing, incoming Dataset, policy ConflictPolicy) (MergeResult, error) {
	if policy != ReplaceOnConflict {
		return MergeResult{}, fmt.Errorf("%w: %q", ErrUnsupportedPolicy, policy)
	}

	prepared := make(Dataset, len(incoming))
	seen := make(map[int]bool, len(incoming))
	var dups []int
	for i, r := range incoming {
		if seen[r.Year] {
			dups = append(dups, r.Year)
		}
		seen[r.Year] = true
		prepared[i] = Rollup(r.Clone())
	}
	if len(dups) > 0 {
		return MergeResult{}, duplicateYearsError(dups, 0)
	}
	for _, r := range prepared {
		if errs := Validate(r, nil); !errs.Valid() {
			return MergeResult{}, &ValidationError{Year: r.Year, Fields: errs}
		}
	}

	out := existing.Clone()
	index := make(map[int]int, len(out))
	for i, r := range out {
		index[r.Year] = i
	}

	report := ImportReport{CreatedYears: []int{}, UpdatedYears: []int{}}
	for _, r := range prepared {
		if i, ok := index[r.Year]; ok {
			out[i] = r
			report.UpdatedYears = append(report.UpdatedYears, r.Year)
			continue
		}
		index[r.Year] = len(out)
		out = append(out, r)
		report.CreatedYears = append(report.CreatedYears, r.Year)
	}
	sort.Ints(report.CreatedYears)
	sort.Ints(report.UpdatedYears)

	return MergeResult{Records: out, Report: report}, nil
}

// ConflictingYears returns the incoming years already present in existing,
// ascending.
func ConflictingYears(existing, incoming Dataset) []int {
	have := make(map[int]bool, len(existing))
	for _, r := range existing {
		have[r.Year] = true
	}
	var years []int
	for _, r := range incoming {
		if have[r.Year] {
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}

// AddRecord appends a new record. A colliding year is refused with a
// *ValidationError carrying DuplicateYear.
func AddRecord(d Dataset, r Record) (Dataset, error) {
	r = Rollup(r.Clone())
	if errs := Validate(r, d.Years()); !errs.Valid() {
		return nil, &ValidationError{Year: r.Year, Fields: errs}
	}
	out := make(Dataset, 0, len(d)+1)
	out = append(out, d.Clone()...)
	return append(out, r), nil
}

// UpdateRecord replaces the record stored under priorYear. r may carry a
// different year, as long as it does not collide with another record.
func UpdateRecord(d Dataset, priorYear int, r Record) (Dataset, error) {
	i := d.Find(priorYear)
	if i < 0 {
		return nil, fmt.Errorf("%w: year %d", ErrRecordNotFound, priorYear)
	}
	r = Rollup(r.Clone())
	if errs := ValidateUpdate(r, priorYear, d.Years()); !errs.Valid() {
		return nil, &ValidationError{Year: r.Year, Fields: errs}
	}
	out := d.Clone()
	out[i] = r
	return out, nil
}

// DeleteRecord removes the record for year.
func DeleteRecord(d Dataset, year int) (Dataset, error) {
	i := d.Find(year)
	if i < 0 {
		return nil, fmt.Errorf("%w: year %d", ErrRecordNotFound, year)
	}
	out := make(Dataset, 0, len(d)-1)
	for j, r := range d {
		if j != i {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}
