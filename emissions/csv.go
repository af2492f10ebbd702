/*
csv.go - CSV import/export of the emissions dataset

PURPOSE:
  Serializes records to CSV and parses CSV text back into candidate records.
  Parsing does shape checks (header, cell counts, numbers) and defers the
  semantic checks to the shared validator, so a CSV row is held to the same
  rules as a form submission.

EXPORT FORMAT:
  Year,Scope 1,Scope 2,Scope 3,Natural Gas Heating,...,Waste
  2023,84.8,70,143,20,43,21.8,30,40,120,10,5,8

  - header row of labels from the FieldSpec, in column order
  - one row per record, ascending by year
  - numbers in shortest round-trip form, no padding
  - absent values are empty cells

IMPORT RULES:
  - header cells match labels case-insensitively, in any order
  - unknown headers are ignored; a missing "Year" header aborts
  - every row must have as many cells as the header
  - the Year cell is checked before any other cell of its row
  - blank numeric cells are omitted, never coerced to 0
  - NaN and Inf cells are invalid values
  - scope totals are rolled up from subcategories before validation
  - a repeated year anywhere in the batch aborts the whole import

  Row numbers in errors are 1-based line numbers; the header is row 1.

SEE ALSO:
  - taxonomy.go: FieldSpec, FullFieldSpec
  - validate.go: per-row semantic checks
  - merge.go: ImportBatch consumes the parsed records
*/
package emissions

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// SERIALIZE
// =============================================================================

// WriteCSV writes records as CSV using the columns of fields.
func WriteCSV(w io.Writer, records []Record, fields FieldSpec) error {
	writer := csv.NewWriter(w)

	header := make([]string, len(fields))
	for i, col := range fields {
		header[i] = col.Label
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range Dataset(records).Sorted() {
		row := make([]string, len(fields))
		for i, col := range fields {
			row[i] = formatCell(r, col.Key)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write year %d: %w", r.Year, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Serialize returns records as CSV text.
func Serialize(records []Record, fields FieldSpec) string {
	var b strings.Builder
	// strings.Builder never fails a write
	_ = WriteCSV(&b, records, fields)
	return b.String()
}

func formatCell(r Record, f Field) string {
	if f == FieldYear {
		return strconv.Itoa(r.Year)
	}
	v, ok := r.Get(f)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// =============================================================================
// PARSE
// =============================================================================

// Parse reads CSV text into candidate records. Any failure aborts the whole
// batch with a *CSVError and no records.
func Parse(text string, fields FieldSpec) ([]Record, error) {
	return ParseReader(strings.NewReader(text), fields)
}

// ParseReader is Parse over an io.Reader.
func ParseReader(in io.Reader, fields FieldSpec) ([]Record, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &CSVError{Kind: NoDataRows, Reason: "CSV file has no data rows"}
	}
	if err != nil {
		return nil, malformed(err)
	}

	columns, err := mapColumns(header, fields)
	if err != nil {
		return nil, err
	}

	var (
		records []Record
		rows    []int
	)
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}
		line, _ := reader.FieldPos(0)

		if len(cells) != len(header) {
			return nil, &CSVError{
				Kind:   RowFieldCountMismatch,
				Row:    line,
				Reason: fmt.Sprintf("expected %d fields, found %d", len(header), len(cells)),
			}
		}

		r, err := parseRow(cells, columns, line)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
		rows = append(rows, line)
	}

	if len(records) == 0 {
		return nil, &CSVError{Kind: NoDataRows, Reason: "CSV file has no data rows"}
	}
	if err := checkBatchYears(records, rows); err != nil {
		return nil, err
	}
	return records, nil
}

// column is one mapped header cell.
type column struct {
	index int
	field Field
	label string
}

func mapColumns(header []string, fields FieldSpec) ([]column, error) {
	var (
		columns []column
		hasYear bool
	)
	for i, cell := range header {
		if i == 0 {
			cell = strings.TrimPrefix(cell, "\ufeff")
		}
		f, ok := fields.lookupLabel(cell)
		if !ok {
			continue
		}
		if f == FieldYear {
			hasYear = true
		}
		columns = append(columns, column{index: i, field: f, label: strings.TrimSpace(cell)})
	}
	if !hasYear {
		return nil, &CSVError{Kind: MissingYearColumn, Reason: "CSV must have a Year column"}
	}
	return columns, nil
}

func parseRow(cells []string, columns []column, line int) (Record, error) {
	var r Record
	labels := make(map[Field]string, len(columns))

	// Year first, so a bad year is reported ahead of any bad value.
	for _, col := range columns {
		if col.field != FieldYear {
			continue
		}
		text := strings.TrimSpace(cells[col.index])
		year, err := strconv.Atoi(text)
		if err != nil || year < MinYear || year > MaxYear {
			return Record{}, &CSVError{
				Kind:   InvalidYear,
				Row:    line,
				Reason: fmt.Sprintf("invalid year %q, expected %d-%d", text, MinYear, MaxYear),
			}
		}
		r.Year = year
		labels[col.field] = col.label
	}

	for _, col := range columns {
		if col.field == FieldYear {
			continue
		}
		text := strings.TrimSpace(cells[col.index])
		labels[col.field] = col.label
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Record{}, invalidValue(line, col.label, text)
		}
		r.Set(col.field, v)
	}

	r = Rollup(r)

	errs := Validate(r, nil)
	if errs.Valid() {
		return r, nil
	}
	if errs.Has(FieldScope1, NoScopeData) {
		return Record{}, &CSVError{
			Kind:   MissingScopeData,
			Row:    line,
			Reason: "at least one scope value is required",
		}
	}
	bad := errs.Fields()[0]
	for _, col := range columns {
		if _, failed := errs[col.field]; failed {
			bad = col.field
			break
		}
	}
	label, ok := labels[bad]
	if !ok {
		label = bad.Label()
	}
	v, _ := r.Get(bad)
	return Record{}, invalidValue(line, label, strconv.FormatFloat(v, 'f', -1, 64))
}

// checkBatchYears rejects a batch that repeats a year, naming the first row
// that repeats one.
func checkBatchYears(records []Record, rows []int) error {
	seen := make(map[int]bool, len(records))
	var (
		dups     []int
		firstRow int
	)
	for i, r := range records {
		if seen[r.Year] {
			if firstRow == 0 {
				firstRow = rows[i]
			}
			dups = append(dups, r.Year)
			continue
		}
		seen[r.Year] = true
	}
	if len(dups) == 0 {
		return nil
	}
	return duplicateYearsError(dups, firstRow)
}

func duplicateYearsError(years []int, row int) *CSVError {
	sort.Ints(years)
	uniq := years[:0]
	for i, y := range years {
		if i == 0 || y != years[i-1] {
			uniq = append(uniq, y)
		}
	}
	parts := make([]string, len(uniq))
	for i, y := range uniq {
		parts[i] = strconv.Itoa(y)
	}
	return &CSVError{
		Kind:   DuplicateYearsInBatch,
		Row:    row,
		Reason: "duplicate years in import: " + strings.Join(parts, ", "),
	}
}

func invalidValue(line int, label, text string) *CSVError {
	return &CSVError{
		Kind:   InvalidValue,
		Row:    line,
		Reason: fmt.Sprintf("invalid value %q for %s", text, label),
	}
}

func malformed(err error) *CSVError {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &CSVError{Kind: MalformedCSV, Row: perr.StartLine, Reason: perr.Err.Error()}
	}
	return &CSVError{Kind: MalformedCSV, Reason: err.Error()}
}
