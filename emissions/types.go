/*
Package emissions provides the emissions data engine.

PURPOSE:
  This package holds the per-year greenhouse gas inventory model and the pure
  functions that keep it consistent: scope rollup, record validation, CSV
  import/export, batch merging and range aggregation for charts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Field: closed enumeration of every numeric column (scopes + subcategories)
  - Record: one calendar year of emissions, keyed by Year
  - Dataset: an unordered collection of records

DESIGN PRINCIPLES:
  1. Closed shape: every known subcategory is an explicit optional field
  2. Purity: engine functions return new values, inputs are never mutated
  3. Year identity: Year is the only key, unique within a dataset
  4. Absent != zero: a nil value was not reported, 0 was reported as zero

USAGE:
  r := emissions.Record{Year: 2023}
  r.Set(emissions.FieldNaturalGasHeating, 20)
  r.Set(emissions.FieldDieselGenerator, 43)
  r = emissions.Rollup(r) // Scope1 == 63

SEE ALSO:
  - taxonomy.go: scope/subcategory tree and labels
  - rollup.go: scope totals from subcategories
  - validate.go: field-level validation rules
*/
package emissions

import (
	"fmt"
	"math"
	"sort"
)

// =============================================================================
// FIELD - Closed enumeration of numeric columns
// =============================================================================

// Field names a numeric column of a Record. The string value is also the JSON
// key and the series key used by charts.
type Field string

const (
	FieldYear Field = "year"

	FieldScope1 Field = "scope1"
	FieldScope2 Field = "scope2"
	FieldScope3 Field = "scope3"

	FieldNaturalGasHeating Field = "scope1_naturalGasHeating"
	FieldDieselGenerator   Field = "scope1_dieselGenerator"
	FieldDieselFleet       Field = "scope1_dieselFleet"

	FieldNYGridElectricity Field = "scope2_nyGridElectricity"
	FieldMFGridElectricity Field = "scope2_mfGridElectricity"

	FieldBusinessTravel    Field = "scope3_businessTravel"
	FieldEmployeeCommuting Field = "scope3_employeeCommuting"
	FieldLogistics         Field = "scope3_logistics"
	FieldWaste             Field = "scope3_waste"
)

// Year bounds, inclusive.
const (
	MinYear = 1900
	MaxYear = 2100
)

// =============================================================================
// RECORD - One calendar year of emissions (tCO2e)
// =============================================================================

// Record is the emissions inventory for one calendar year.
// A nil value means "not reported". Scope totals are derived from their
// subcategories whenever at least one subcategory is populated.
type Record struct {
	Year int `json:"year"`

	Scope1 *float64 `json:"scope1,omitempty"`
	Scope2 *float64 `json:"scope2,omitempty"`
	Scope3 *float64 `json:"scope3,omitempty"`

	NaturalGasHeating *float64 `json:"scope1_naturalGasHeating,omitempty"`
	DieselGenerator   *float64 `json:"scope1_dieselGenerator,omitempty"`
	DieselFleet       *float64 `json:"scope1_dieselFleet,omitempty"`

	NYGridElectricity *float64 `json:"scope2_nyGridElectricity,omitempty"`
	MFGridElectricity *float64 `json:"scope2_mfGridElectricity,omitempty"`

	BusinessTravel    *float64 `json:"scope3_businessTravel,omitempty"`
	EmployeeCommuting *float64 `json:"scope3_employeeCommuting,omitempty"`
	Logistics         *float64 `json:"scope3_logistics,omitempty"`
	Waste             *float64 `json:"scope3_waste,omitempty"`
}

// slot returns the storage location of a numeric field, or nil for FieldYear
// and unknown fields.
func (r *Record) slot(f Field) **float64 {
	switch f {
	case FieldScope1:
		return &r.Scope1
	case FieldScope2:
		return &r.Scope2
	case FieldScope3:
		return &r.Scope3
	case FieldNaturalGasHeating:
		return &r.NaturalGasHeating
	case FieldDieselGenerator:
		return &r.DieselGenerator
	case FieldDieselFleet:
		return &r.DieselFleet
	case FieldNYGridElectricity:
		return &r.NYGridElectricity
	case FieldMFGridElectricity:
		return &r.MFGridElectricity
	case FieldBusinessTravel:
		return &r.BusinessTravel
	case FieldEmployeeCommuting:
		return &r.EmployeeCommuting
	case FieldLogistics:
		return &r.Logistics
	case FieldWaste:
		return &r.Waste
	}
	return nil
}

// Get returns the value of a numeric field and whether it is populated.
func (r Record) Get(f Field) (float64, bool) {
	p := r.slot(f)
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

// Value returns the field value, 0 when absent.
func (r Record) Value(f Field) float64 {
	v, _ := r.Get(f)
	return v
}

// Has reports whether a numeric field is populated.
func (r Record) Has(f Field) bool {
	_, ok := r.Get(f)
	return ok
}

// Set assigns a numeric field. A fresh pointer is stored so copies of the
// record never share the new value.
func (r *Record) Set(f Field, v float64) {
	if p := r.slot(f); p != nil {
		*p = &v
	}
}

// Clear marks a numeric field as not reported.
func (r *Record) Clear(f Field) {
	if p := r.slot(f); p != nil {
		*p = nil
	}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{Year: r.Year}
	for _, f := range NumericFields() {
		if v, ok := r.Get(f); ok {
			out.Set(f, v)
		}
	}
	return out
}

// Equal reports whether two records carry the same year and values.
func (r Record) Equal(o Record) bool {
	if r.Year != o.Year {
		return false
	}
	for _, f := range NumericFields() {
		a, okA := r.Get(f)
		b, okB := o.Get(f)
		if okA != okB || (okA && a != b) {
			return false
		}
	}
	return true
}

// Values returns the populated numeric fields as a map keyed by Field.
func (r Record) Values() map[Field]float64 {
	out := make(map[Field]float64)
	for _, f := range NumericFields() {
		if v, ok := r.Get(f); ok {
			out[f] = v
		}
	}
	return out
}

func (r Record) String() string {
	return fmt.Sprintf("Record{%d %v}", r.Year, r.Values())
}

// Float returns a pointer to v. Handy for composite literals.
func Float(v float64) *float64 { return &v }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// =============================================================================
// DATASET - Unordered collection of records
// =============================================================================

// Dataset is the full set of records. Order carries no meaning.
type Dataset []Record

// Years returns the years present in the dataset, in dataset order.
func (d Dataset) Years() []int {
	years := make([]int, len(d))
	for i, r := range d {
		years[i] = r.Year
	}
	return years
}

// Find returns the index of the record for year, or -1.
func (d Dataset) Find(year int) int {
	for i, r := range d {
		if r.Year == year {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the dataset.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	out := make(Dataset, len(d))
	for i, r := range d {
		out[i] = r.Clone()
	}
	return out
}

// Sorted returns a copy ordered ascending by year.
func (d Dataset) Sorted() Dataset {
	out := d.Clone()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}
