/*
rollup.go - Scope totals derived from subcategories

PURPOSE:
  A scope total with at least one populated subcategory is never entered by
  hand: it is the sum of its subcategories rounded to 2 decimal places.
  A scope with no populated subcategory keeps its manually entered value.

WHEN TO CALL:
  - after every subcategory edit
  - before persisting any record with a populated subcategory
  - by the CSV parser when a row carries subcategories but no total column

PRECISION:
  Sums are accumulated with decimal.Decimal so 20 + 43 + 21.8 is exactly 84.8.
  Values are non-negative after validation, so decimal's half-away-from-zero
  rounding is the same as half-up.

SEE ALSO:
  - types.go: Record accessors
  - validate.go: rejects non-finite and negative subcategories
*/
package emissions

import "github.com/shopspring/decimal"

// rollupPlaces is the precision of derived scope totals.
const rollupPlaces = 2

// RecomputeScopeTotal overwrites a scope total with the rounded sum of its
// populated subcategories and returns the updated copy. It is a no-op when
// scope has no populated subcategory, when scope is not a top-level scope,
// or when a populated subcategory is not a finite number.
func RecomputeScopeTotal(r Record, scope Field) Record {
	total, ok := subcategorySum(r, scope)
	if !ok {
		return r
	}
	out := r.Clone()
	v, _ := total.Round(rollupPlaces).Float64()
	out.Set(scope, v)
	return out
}

// Rollup recomputes every scope total of r.
func Rollup(r Record) Record {
	for _, scope := range ScopeFields() {
		r = RecomputeScopeTotal(r, scope)
	}
	return r
}

// HasSubcategories reports whether any subcategory of scope is populated.
func HasSubcategories(r Record, scope Field) bool {
	for _, sub := range SubcategoryFields(scope) {
		if r.Has(sub) {
			return true
		}
	}
	return false
}

// IsRolledUp reports whether every scope of r satisfies the rollup invariant.
func IsRolledUp(r Record) bool {
	for _, scope := range ScopeFields() {
		total, ok := subcategorySum(r, scope)
		if !ok {
			continue
		}
		want, _ := total.Round(rollupPlaces).Float64()
		if got, has := r.Get(scope); !has || got != want {
			return false
		}
	}
	return true
}

// subcategorySum returns the exact sum of the populated subcategories of
// scope. ok is false when there is nothing to sum or a value is not finite.
func subcategorySum(r Record, scope Field) (decimal.Decimal, bool) {
	sum := decimal.Zero
	populated := 0
	for _, sub := range SubcategoryFields(scope) {
		v, has := r.Get(sub)
		if !has {
			continue
		}
		if !isFinite(v) {
			return decimal.Zero, false
		}
		sum = sum.Add(decimal.NewFromFloat(v))
		populated++
	}
	return sum, populated > 0
}

// RoundForDisplay rounds v to one decimal place, half-up.
func RoundForDisplay(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	out, _ := decimal.NewFromFloat(v).Round(1).Float64()
	return out
}
