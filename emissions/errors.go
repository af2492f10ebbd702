/*
errors.go - Centralized error types for the emissions engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Field-level problems are plain data (FieldErrors); they only become an
  error value when an operation must refuse to apply a change.

ERROR CATEGORIES:
  1. Field errors - per-field validation results (MissingYear, NegativeValue...)
  2. Batch/CSV errors - abort a whole import, optionally naming a row
  3. Dataset errors - missing records, identity collisions

USAGE:
  next, err := emissions.AddRecord(dataset, rec)
  var verr *emissions.ValidationError
  if errors.As(err, &verr) {
      // verr.Fields[emissions.FieldYear] == emissions.DuplicateYear
  }

SEE ALSO:
  - validate.go: produces FieldErrors
  - csv.go: produces CSVError
  - merge.go: wraps FieldErrors into ValidationError
*/
package emissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a record fails field validation.
	ErrValidation = errors.New("record validation failed")

	// ErrDuplicateYear is returned when a create collides with an existing year.
	ErrDuplicateYear = errors.New("data for this year already exists")

	// ErrRecordNotFound is returned when no record exists for the given year.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidCSV is returned when CSV text cannot be turned into records.
	ErrInvalidCSV = errors.New("invalid csv")

	// ErrUnsupportedPolicy is returned for any merge policy other than
	// replace-on-conflict.
	ErrUnsupportedPolicy = errors.New("unsupported conflict policy")

	// ErrImportConflict is returned when a non-overwriting import meets
	// years that already exist.
	ErrImportConflict = errors.New("import conflicts with existing years")

	// ErrUnknownField is returned when a series key is not part of the taxonomy.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidRange is returned when a year range is malformed.
	ErrInvalidRange = errors.New("invalid year range: end before start")

	// ErrUnknownChartKind is returned for a chart type other than line, area,
	// bar or pie.
	ErrUnknownChartKind = errors.New("unknown chart kind")
)

// =============================================================================
// FIELD ERRORS - Returned as data, never thrown
// =============================================================================

// ErrorKind identifies a field-level validation failure.
type ErrorKind string

const (
	MissingYear    ErrorKind = "missing_year"
	YearOutOfRange ErrorKind = "year_out_of_range"
	DuplicateYear  ErrorKind = "duplicate_year"
	NoScopeData    ErrorKind = "no_scope_data"
	NegativeValue  ErrorKind = "negative_value"
	NotANumber     ErrorKind = "not_a_number"
)

// Message returns the inline form message for a kind.
func (k ErrorKind) Message() string {
	switch k {
	case MissingYear:
		return "Year is required"
	case YearOutOfRange:
		return fmt.Sprintf("Please enter a valid year (%d-%d)", MinYear, MaxYear)
	case DuplicateYear:
		return "Data for this year already exists"
	case NoScopeData:
		return "At least one scope is required"
	case NegativeValue:
		return "Must be a positive number"
	case NotANumber:
		return "Must be a number"
	}
	return string(k)
}

// FieldErrors maps a field to its first failing rule. Empty means valid.
type FieldErrors map[Field]ErrorKind

// Valid reports whether no field failed.
func (fe FieldErrors) Valid() bool { return len(fe) == 0 }

// Fields returns the failing fields in stable order.
func (fe FieldErrors) Fields() []Field {
	out := make([]Field, 0, len(fe))
	for f := range fe {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether field f failed with kind k.
func (fe FieldErrors) Has(f Field, k ErrorKind) bool {
	got, ok := fe[f]
	return ok && got == k
}

// add records kind for f unless f already failed an earlier rule.
func (fe FieldErrors) add(f Field, k ErrorKind) {
	if _, exists := fe[f]; !exists {
		fe[f] = k
	}
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError wraps the field errors of a refused record.
type ValidationError struct {
	Year   int
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return fmt.Sprintf("record %d invalid: %s", e.Year, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() []error {
	if e.Fields.Has(FieldYear, DuplicateYear) {
		return []error{ErrValidation, ErrDuplicateYear}
	}
	return []error{ErrValidation}
}

// CSVErrorKind identifies why a CSV import was refused.
type CSVErrorKind string

const (
	MissingYearColumn     CSVErrorKind = "missing_year_column"
	RowFieldCountMismatch CSVErrorKind = "row_field_count_mismatch"
	InvalidYear           CSVErrorKind = "invalid_year"
	MissingScopeData      CSVErrorKind = "missing_scope_data"
	InvalidValue          CSVErrorKind = "invalid_value"
	DuplicateYearsInBatch CSVErrorKind = "duplicate_years_in_batch"
	NoDataRows            CSVErrorKind = "no_data_rows"
	MalformedCSV          CSVErrorKind = "malformed_csv"
)

// CSVError aborts a whole import. Row is 1-based (the header is row 1) and
// zero when the failure is not tied to a row.
type CSVError struct {
	Kind   CSVErrorKind
	Row    int
	Reason string
}

func (e *CSVError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return e.Reason
}

func (e *CSVError) Unwrap() error { return ErrInvalidCSV }

// ImportConflictError lists the years a non-overwriting import would replace.
type ImportConflictError struct {
	Years []int
}

func (e *ImportConflictError) Error() string {
	return fmt.Sprintf("import conflicts with existing years %v", e.Years)
}

func (e *ImportConflictError) Unwrap() error { return ErrImportConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidCSV) ||
		errors.Is(err, ErrUnsupportedPolicy) ||
		errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrUnknownChartKind)
}

// IsConflict returns true if the error is an identity collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateYear) || errors.Is(err, ErrImportConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
