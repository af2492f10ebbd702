package emissions_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/emissions-engine/emissions"
)

func TestValidate_ValidRecord(t *testing.T) {
	r := emissions.Record{Year: 2023, Scope1: emissions.Float(84.8)}

	errs := emissions.Validate(r, []int{2021, 2022})

	assert.True(t, errs.Valid())
}

func TestValidate_YearRules(t *testing.T) {
	tests := []struct {
		name string
		year int
		want emissions.ErrorKind
	}{
		{"missing", 0, emissions.MissingYear},
		{"too early", 1899, emissions.YearOutOfRange},
		{"too late", 2101, emissions.YearOutOfRange},
		{"duplicate", 2022, emissions.DuplicateYear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := emissions.Record{Year: tt.year, Scope2: emissions.Float(1)}

			errs := emissions.Validate(r, []int{2022})

			assert.Equal(t, emissions.FieldErrors{emissions.FieldYear: tt.want}, errs)
		})
	}
}

func TestValidate_BoundsInclusive(t *testing.T) {
	for _, year := range []int{emissions.MinYear, emissions.MaxYear} {
		r := emissions.Record{Year: year, Scope3: emissions.Float(1)}
		assert.True(t, emissions.Validate(r, nil).Valid(), "year %d", year)
	}
}

func TestValidate_NoScopeDataOnEveryScope(t *testing.T) {
	// GIVEN: Only zero totals and no subcategories
	r := emissions.Record{Year: 2023, Scope1: emissions.Float(0)}

	errs := emissions.Validate(r, nil)

	// THEN: All three scope fields carry NoScopeData
	assert.Equal(t, emissions.FieldErrors{
		emissions.FieldScope1: emissions.NoScopeData,
		emissions.FieldScope2: emissions.NoScopeData,
		emissions.FieldScope3: emissions.NoScopeData,
	}, errs)
}

func TestValidate_NoScopeDataTakesPrecedence(t *testing.T) {
	// GIVEN: A negative total that is also the only scope data
	r := emissions.Record{Year: 2023, Scope1: emissions.Float(math.NaN()), Waste: emissions.Float(-1)}

	errs := emissions.Validate(r, nil)

	// THEN: Scope 1 reports the earlier rule, Waste its own
	assert.True(t, errs.Has(emissions.FieldScope1, emissions.NoScopeData))
	assert.True(t, errs.Has(emissions.FieldWaste, emissions.NegativeValue))
}

func TestValidate_NumericRules(t *testing.T) {
	r := emissions.Record{
		Year:           2023,
		Scope1:         emissions.Float(10),
		Scope2:         emissions.Float(-5),
		BusinessTravel: emissions.Float(math.Inf(1)),
	}

	errs := emissions.Validate(r, nil)

	assert.Equal(t, emissions.FieldErrors{
		emissions.FieldScope2:         emissions.NegativeValue,
		emissions.FieldBusinessTravel: emissions.NotANumber,
	}, errs)
}

func TestValidate_ErrorsPerFieldIndependent(t *testing.T) {
	// A bad year does not hide a bad value.
	r := emissions.Record{Year: 1800, Scope1: emissions.Float(-1), Scope2: emissions.Float(3)}

	errs := emissions.Validate(r, nil)

	assert.Equal(t, []emissions.Field{emissions.FieldScope1, emissions.FieldYear}, errs.Fields())
}

func TestValidateUpdate_ExcludesPriorYear(t *testing.T) {
	existing := []int{2021, 2022, 2023}
	r := emissions.Record{Year: 2022, Scope1: emissions.Float(1)}

	// WHEN: Saving 2022 without renaming it
	errs := emissions.ValidateUpdate(r, 2022, existing)
	assert.True(t, errs.Valid())

	// WHEN: Renaming 2021 onto 2022
	errs = emissions.ValidateUpdate(r, 2021, existing)
	assert.True(t, errs.Has(emissions.FieldYear, emissions.DuplicateYear))
}

func TestErrorKind_Message(t *testing.T) {
	assert.Equal(t, "Year is required", emissions.MissingYear.Message())
	assert.Equal(t, "Please enter a valid year (1900-2100)", emissions.YearOutOfRange.Message())
	assert.Equal(t, "Data for this year already exists", emissions.DuplicateYear.Message())
	assert.Equal(t, "At least one scope is required", emissions.NoScopeData.Message())
	assert.Equal(t, "Must be a positive number", emissions.NegativeValue.Message())
	assert.Equal(t, "Must be a number", emissions.NotANumber.Message())
}

func TestValidationError_Unwrap(t *testing.T) {
	dup := &emissions.ValidationError{Year: 2022, Fields: emissions.FieldErrors{
		emissions.FieldYear: emissions.DuplicateYear,
	}}
	neg := &emissions.ValidationError{Year: 2022, Fields: emissions.FieldErrors{
		emissions.FieldScope1: emissions.NegativeValue,
	}}

	assert.True(t, errors.Is(dup, emissions.ErrValidation))
	assert.True(t, errors.Is(dup, emissions.ErrDuplicateYear))
	assert.True(t, emissions.IsConflict(dup))
	assert.False(t, errors.Is(neg, emissions.ErrDuplicateYear))
	assert.True(t, emissions.IsClientError(neg))
	assert.Equal(t, "record 2022 invalid: scope1: negative_value", neg.Error())
}

// =============================================================================
// FORM
// =============================================================================

func TestFormRecord_ParsesAndSkipsBlanks(t *testing.T) {
	form := emissions.Form{
		emissions.FieldYear:   " 2023 ",
		emissions.FieldScope1: "84.8",
		emissions.FieldScope2: "",
		emissions.FieldWaste:  "  ",
	}

	r, errs := form.Record()

	require.True(t, errs.Valid())
	assert.Equal(t, 2023, r.Year)
	assert.Equal(t, 84.8, r.Value(emissions.FieldScope1))
	assert.False(t, r.Has(emissions.FieldScope2))
	assert.False(t, r.Has(emissions.FieldWaste))
}

func TestFormRecord_BadText(t *testing.T) {
	form := emissions.Form{
		emissions.FieldYear:   "twenty",
		emissions.FieldScope1: "abc",
		emissions.FieldScope3: "Inf",
	}

	_, errs := form.Record()

	assert.Equal(t, emissions.FieldErrors{
		emissions.FieldYear:   emissions.YearOutOfRange,
		emissions.FieldScope1: emissions.NotANumber,
		emissions.FieldScope3: emissions.NotANumber,
	}, errs)
}

func TestValidateForm_RollsUpBeforeValidating(t *testing.T) {
	// GIVEN: Only subcategories are filled in
	form := emissions.Form{
		emissions.FieldYear:              "2023",
		emissions.FieldNaturalGasHeating: "20",
		emissions.FieldDieselGenerator:   "43",
		emissions.FieldDieselFleet:       "21.8",
	}

	r, errs := emissions.ValidateForm(form, []int{2022})

	// THEN: The derived Scope 1 satisfies the scope requirement
	require.True(t, errs.Valid(), "%v", errs)
	assert.Equal(t, 84.8, r.Value(emissions.FieldScope1))
}

func TestValidateForm_UnparsableYearIsOutOfRange(t *testing.T) {
	form := emissions.Form{emissions.FieldYear: "20x3", emissions.FieldScope1: "1"}

	_, errs := emissions.ValidateForm(form, nil)

	assert.Equal(t, emissions.FieldErrors{emissions.FieldYear: emissions.YearOutOfRange}, errs)
}

func TestValidateForm_EmptyForm(t *testing.T) {
	_, errs := emissions.ValidateForm(emissions.Form{}, nil)

	assert.True(t, errs.Has(emissions.FieldYear, emissions.MissingYear))
	assert.True(t, errs.Has(emissions.FieldScope1, emissions.NoScopeData))
	assert.True(t, errs.Has(emissions.FieldScope3, emissions.NoScopeData))
}

func TestValidateForm_NegativeSubcategory(t *testing.T) {
	form := emissions.Form{
		emissions.FieldYear:           "2023",
		emissions.FieldScope2:         "70",
		emissions.FieldBusinessTravel: "-3",
	}

	_, errs := emissions.ValidateForm(form, nil)

	assert.True(t, errs.Has(emissions.FieldBusinessTravel, emissions.NegativeValue))
	assert.True(t, errs.Has(emissions.FieldScope3, emissions.NegativeValue))
}
