package emissions

import (
	"fmt"
	"strings"
)

// =============================================================================
// TAXONOMY - Fixed scope / subcategory tree
// =============================================================================

// Scope describes one GHG Protocol scope and its subcategories.
type Scope struct {
	Key           Field
	Label         string
	Subcategories []Subcategory
}

// Subcategory is a named contributor to a scope total.
type Subcategory struct {
	Key   Field
	Label string
}

var taxonomy = []Scope{
	{
		Key:   FieldScope1,
		Label: "Scope 1",
		Subcategories: []Subcategory{
			{Key: FieldNaturalGasHeating, Label: "Natural Gas Heating"},
			{Key: FieldDieselGenerator, Label: "Diesel Generator"},
			{Key: FieldDieselFleet, Label: "Diesel Fleet"},
		},
	},
	{
		Key:   FieldScope2,
		Label: "Scope 2",
		Subcategories: []Subcategory{
			{Key: FieldNYGridElectricity, Label: "NY Grid Electricity"},
			{Key: FieldMFGridElectricity, Label: "MF Grid Electricity"},
		},
	},
	{
		Key:   FieldScope3,
		Label: "Scope 3",
		Subcategories: []Subcategory{
			{Key: FieldBusinessTravel, Label: "Business Travel"},
			{Key: FieldEmployeeCommuting, Label: "Employee Commuting"},
			{Key: FieldLogistics, Label: "Logistics"},
			{Key: FieldWaste, Label: "Waste"},
		},
	},
}

// Taxonomy returns the scope tree. The returned slice is a copy.
func Taxonomy() []Scope {
	out := make([]Scope, len(taxonomy))
	for i, s := range taxonomy {
		out[i] = Scope{Key: s.Key, Label: s.Label, Subcategories: append([]Subcategory(nil), s.Subcategories...)}
	}
	return out
}

// ScopeFields returns the three top-level scope fields in order.
func ScopeFields() []Field {
	return []Field{FieldScope1, FieldScope2, FieldScope3}
}

// SubcategoryFields returns the subcategory fields of a scope, or nil if
// scope is not a top-level scope.
func SubcategoryFields(scope Field) []Field {
	for _, s := range taxonomy {
		if s.Key == scope {
			out := make([]Field, len(s.Subcategories))
			for i, sub := range s.Subcategories {
				out[i] = sub.Key
			}
			return out
		}
	}
	return nil
}

// NumericFields returns every numeric field: scopes first, then subcategories
// in taxonomy order.
func NumericFields() []Field {
	out := ScopeFields()
	for _, s := range taxonomy {
		for _, sub := range s.Subcategories {
			out = append(out, sub.Key)
		}
	}
	return out
}

// IsScope reports whether f is a top-level scope.
func (f Field) IsScope() bool {
	return f == FieldScope1 || f == FieldScope2 || f == FieldScope3
}

// Parent returns the scope a subcategory belongs to. Scopes return themselves,
// year and unknown fields return "".
func (f Field) Parent() Field {
	if f.IsScope() {
		return f
	}
	for _, s := range taxonomy {
		for _, sub := range s.Subcategories {
			if sub.Key == f {
				return s.Key
			}
		}
	}
	return ""
}

// Label returns the human-readable label of a field.
func (f Field) Label() string {
	if f == FieldYear {
		return "Year"
	}
	for _, s := range taxonomy {
		if s.Key == f {
			return s.Label
		}
		for _, sub := range s.Subcategories {
			if sub.Key == f {
				return sub.Label
			}
		}
	}
	return string(f)
}

// Valid reports whether f belongs to the closed enumeration.
func (f Field) Valid() bool {
	return f == FieldYear || f.Parent() != ""
}

// ParseField converts a series key into a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.TrimSpace(s))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
	return f, nil
}

// =============================================================================
// FIELD SPEC - Ordered (key, label) pairs for CSV
// =============================================================================

// FieldLabel pairs a field with the label used in CSV headers.
type FieldLabel struct {
	Key   Field
	Label string
}

// FieldSpec is an ordered list of CSV columns.
type FieldSpec []FieldLabel

// FullFieldSpec returns the export column set: Year, the three scopes, then
// every subcategory.
func FullFieldSpec() FieldSpec {
	spec := FieldSpec{{Key: FieldYear, Label: FieldYear.Label()}}
	for _, f := range NumericFields() {
		spec = append(spec, FieldLabel{Key: f, Label: f.Label()})
	}
	return spec
}

// ScopeFieldSpec returns Year plus the three scope totals.
func ScopeFieldSpec() FieldSpec {
	spec := FieldSpec{{Key: FieldYear, Label: FieldYear.Label()}}
	for _, f := range ScopeFields() {
		spec = append(spec, FieldLabel{Key: f, Label: f.Label()})
	}
	return spec
}

// lookupLabel finds a column by label, case-insensitively.
func (s FieldSpec) lookupLabel(label string) (Field, bool) {
	label = strings.TrimSpace(label)
	for _, fl := range s {
		if strings.EqualFold(fl.Label, label) {
			return fl.Key, true
		}
	}
	return "", false
}
