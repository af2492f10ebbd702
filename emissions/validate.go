/*
validate.go - Field-level and cross-field record validation

PURPOSE:
  The single validator shared by every entry point: manual create, manual
  edit, CSV import and bulk import. Results are data (FieldErrors), never
  panics; callers decide whether to block or merge.

RULES (precedence order, first failure per field wins):
  1. MissingYear     - year absent (zero)
  2. YearOutOfRange  - year outside [MinYear, MaxYear]
  3. DuplicateYear   - year collides with another record
  4. NoScopeData     - scope1, scope2 and scope3 all absent or zero
  5. NegativeValue   - numeric field < 0
  6. NotANumber      - numeric field is NaN/Inf, or form text does not parse

  Every field is checked independently, so a record can carry one error per
  field. NoScopeData is reported on each of the three scope fields.

EDITS:
  ValidateUpdate excludes the record's own prior year from the collision
  check, so saving an edit without renaming the year is never a duplicate.

SEE ALSO:
  - errors.go: ErrorKind, FieldErrors
  - merge.go: turns FieldErrors into *ValidationError
*/
package emissions

import (
	"strconv"
	"strings"
)

// Validate checks a candidate record for creation against the years already
// present in the dataset.
func Validate(c Record, existingYears []int) FieldErrors {
	return validate(c, existingYears, nil)
}

// ValidateUpdate checks an edited record. priorYear is the year the record
// had before the edit.
func ValidateUpdate(c Record, priorYear int, existingYears []int) FieldErrors {
	return validate(c, existingYears, &priorYear)
}

func validate(c Record, existingYears []int, priorYear *int) FieldErrors {
	errs := FieldErrors{}

	switch {
	case c.Year == 0:
		errs.add(FieldYear, MissingYear)
	case c.Year < MinYear || c.Year > MaxYear:
		errs.add(FieldYear, YearOutOfRange)
	case collides(c.Year, existingYears, priorYear):
		errs.add(FieldYear, DuplicateYear)
	}

	if !hasScopeData(c) {
		for _, scope := range ScopeFields() {
			errs.add(scope, NoScopeData)
		}
	}

	for _, f := range NumericFields() {
		v, ok := c.Get(f)
		if !ok {
			continue
		}
		if v < 0 {
			errs.add(f, NegativeValue)
			continue
		}
		if !isFinite(v) {
			errs.add(f, NotANumber)
		}
	}

	return errs
}

func collides(year int, existingYears []int, priorYear *int) bool {
	if priorYear != nil && *priorYear == year {
		return false
	}
	for _, y := range existingYears {
		if y == year {
			return true
		}
	}
	return false
}

// hasScopeData reports whether at least one scope total is a usable non-zero
// number. Negative totals count as data; NegativeValue reports them.
func hasScopeData(c Record) bool {
	for _, scope := range ScopeFields() {
		if v, ok := c.Get(scope); ok && v != 0 && isFinite(v) {
			return true
		}
	}
	return false
}

// =============================================================================
// FORM - Raw text input from an entry form
// =============================================================================

// Form holds the raw text of an entry form keyed by field. Blank text means
// the field was left empty.
type Form map[Field]string

// Record converts the form into a candidate record. Text that does not parse
// as a finite number is left out of the record and reported as NotANumber;
// a year that does not parse as an integer is reported as YearOutOfRange.
func (f Form) Record() (Record, FieldErrors) {
	var r Record
	errs := FieldErrors{}

	if text := strings.TrimSpace(f[FieldYear]); text != "" {
		year, err := strconv.Atoi(text)
		if err != nil {
			errs.add(FieldYear, YearOutOfRange)
		} else {
			r.Year = year
		}
	}

	for _, field := range NumericFields() {
		text := strings.TrimSpace(f[field])
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || !isFinite(v) {
			errs.add(field, NotANumber)
			continue
		}
		r.Set(field, v)
	}

	return r, errs
}

// ValidateForm parses and validates a form for creation. Subcategory values
// are rolled up before validation so the totals checked are the ones that
// would be saved.
func ValidateForm(f Form, existingYears []int) (Record, FieldErrors) {
	r, parseErrs := f.Record()
	r = Rollup(r)
	errs := Validate(r, existingYears)
	if r.Year == 0 && parseErrs.Has(FieldYear, YearOutOfRange) {
		delete(errs, FieldYear)
	}
	for field, kind := range parseErrs {
		errs.add(field, kind)
	}
	return r, errs
}
