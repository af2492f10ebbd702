/*
aggregate.go - Range filtering, summary statistics and chart aggregation

PURPOSE:
  Stateless computations over a dataset, a [start, end] year window and a
  set of enabled series. The outputs are plain numbers handed to whatever
  draws the charts.

OUTPUTS:
  FilterByRange:       records in the window, ascending by year
  ComputeStats:        latest total, baseline, reduction %, tracked scopes
  AggregateForSnapshot: per-series sums across the window (pie charts)
  Series:              per-year values of enabled series (line/area/bar)
  ComputeTrend:        latest-year cards with year-over-year change

SNAPSHOT EXCLUSIVITY:
  Scope totals already include their subcategories. When a subcategory is
  enabled its parent scope is left out of the snapshot, so no emission is
  counted twice.

SEE ALSO:
  - taxonomy.go: scope/subcategory tree behind SeriesSet.WithScope
*/
package emissions

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SERIES SET - Which series are switched on
// =============================================================================

// SeriesSet is the set of enabled series keys.
type SeriesSet map[Field]bool

// DefaultSeries enables the three scope totals.
func DefaultSeries() SeriesSet {
	return SeriesSet{FieldScope1: true, FieldScope2: true, FieldScope3: true}
}

// Enabled reports whether f is switched on.
func (s SeriesSet) Enabled(f Field) bool { return s[f] }

// With returns a copy with a single series switched.
func (s SeriesSet) With(f Field, on bool) SeriesSet {
	out := s.clone()
	if on {
		out[f] = true
	} else {
		delete(out, f)
	}
	return out
}

// WithScope returns a copy with scope and all its subcategories switched.
func (s SeriesSet) WithScope(scope Field, on bool) SeriesSet {
	out := s.With(scope, on)
	for _, sub := range SubcategoryFields(scope) {
		if on {
			out[sub] = true
		} else {
			delete(out, sub)
		}
	}
	return out
}

// Fields returns the enabled series in taxonomy order.
func (s SeriesSet) Fields() []Field {
	var out []Field
	for _, f := range NumericFields() {
		if s[f] {
			out = append(out, f)
		}
	}
	return out
}

func (s SeriesSet) clone() SeriesSet {
	out := make(SeriesSet, len(s))
	for f, on := range s {
		if on {
			out[f] = true
		}
	}
	return out
}

// ParseSeries builds a SeriesSet from series keys. Empty keys are skipped.
func ParseSeries(keys []string) (SeriesSet, error) {
	out := SeriesSet{}
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		f, err := ParseField(k)
		if err != nil {
			return nil, err
		}
		if f == FieldYear {
			return nil, fmt.Errorf("%w: %q is not a series", ErrUnknownField, k)
		}
		out[f] = true
	}
	return out, nil
}

// =============================================================================
// FILTER + STATS
// =============================================================================

// ResolveRange fills the unbounded ends of a range, given as 0, with the
// earliest and latest years in d, or MinYear and MaxYear when d is empty.
func ResolveRange(d Dataset, start, end int) (int, int) {
	years := d.Sorted().Years()
	if start == 0 {
		start = MinYear
		if len(years) > 0 {
			start = years[0]
		}
	}
	if end == 0 {
		end = MaxYear
		if len(years) > 0 {
			end = years[len(years)-1]
		}
	}
	return start, end
}

// FilterByRange returns the records with start <= year <= end, ascending.
// An inverted range yields no records.
func FilterByRange(d Dataset, start, end int) Dataset {
	out := Dataset{}
	if start > end {
		return out
	}
	for _, r := range d.Sorted() {
		if r.Year >= start && r.Year <= end {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarises a filtered window.
type Stats struct {
	Total             float64 `json:"total"`
	Baseline          float64 `json:"baseline"`
	ReductionPercent  float64 `json:"reductionPercent"`
	TrackedScopeCount int     `json:"trackedScopeCount"`
	LatestYear        int     `json:"latestYear,omitempty"`
	BaselineYear      int     `json:"baselineYear,omitempty"`
}

// ComputeStats compares the latest and earliest records of filtered, summing
// the enabled scope totals. all is the full dataset, used only for the count
// of scopes the organisation reports at all.
func ComputeStats(filtered, all Dataset, enabled SeriesSet) Stats {
	stats := Stats{TrackedScopeCount: trackedScopes(all)}

	sorted := filtered.Sorted()
	if len(sorted) == 0 {
		return stats
	}
	latest, earliest := sorted[len(sorted)-1], sorted[0]

	total := sumScopes(latest, enabled)
	baseline := sumScopes(earliest, enabled)

	stats.Total, _ = total.Float64()
	stats.Baseline, _ = baseline.Float64()
	stats.LatestYear = latest.Year
	stats.BaselineYear = earliest.Year
	if baseline.IsPositive() {
		stats.ReductionPercent = percentChange(baseline, total).Neg().InexactFloat64()
	}
	return stats
}

func trackedScopes(all Dataset) int {
	n := 0
	for _, scope := range ScopeFields() {
		for _, r := range all {
			if r.Has(scope) {
				n++
				break
			}
		}
	}
	return n
}

func sumScopes(r Record, enabled SeriesSet) decimal.Decimal {
	sum := decimal.Zero
	for _, scope := range ScopeFields() {
		if enabled[scope] {
			sum = sum.Add(toDecimal(r, scope))
		}
	}
	return sum
}

// percentChange returns (to - from) / from * 100. from must be non-zero.
func percentChange(from, to decimal.Decimal) decimal.Decimal {
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100))
}

// toDecimal returns the value of f, zero when absent or not finite.
func toDecimal(r Record, f Field) decimal.Decimal {
	v, ok := r.Get(f)
	if !ok || !isFinite(v) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// =============================================================================
// SNAPSHOT + SERIES
// =============================================================================

// AggregateForSnapshot sums each enabled series across filtered. Zero sums
// are dropped, and a scope is left out when any of its subcategories is
// enabled.
func AggregateForSnapshot(filtered Dataset, enabled SeriesSet) map[Field]float64 {
	out := make(map[Field]float64)
	for _, f := range enabled.Fields() {
		if f.IsScope() && anySubcategoryEnabled(f, enabled) {
			continue
		}
		sum := decimal.Zero
		for _, r := range filtered {
			sum = sum.Add(toDecimal(r, f))
		}
		if sum.IsZero() {
			continue
		}
		out[f], _ = sum.Float64()
	}
	return out
}

func anySubcategoryEnabled(scope Field, enabled SeriesSet) bool {
	for _, sub := range SubcategoryFields(scope) {
		if enabled[sub] {
			return true
		}
	}
	return false
}

// SeriesPoint is one year of chart data.
type SeriesPoint struct {
	Year   int
	Values map[Field]float64
}

// Series returns the per-year values of the enabled series, ascending by
// year. Absent values are left out of a point.
func Series(filtered Dataset, enabled SeriesSet) []SeriesPoint {
	fields := enabled.Fields()
	sorted := filtered.Sorted()
	out := make([]SeriesPoint, 0, len(sorted))
	for _, r := range sorted {
		p := SeriesPoint{Year: r.Year, Values: make(map[Field]float64, len(fields))}
		for _, f := range fields {
			if v, ok := r.Get(f); ok {
				p.Values[f] = v
			}
		}
		out = append(out, p)
	}
	return out
}

// =============================================================================
// TREND - Latest-year summary cards
// =============================================================================

// Trend summarises the latest record against the previous one and the
// earliest one.
type Trend struct {
	Year           int               `json:"year"`
	PreviousYear   int               `json:"previousYear,omitempty"`
	Total          float64           `json:"totalEmissions"`
	Scope1And2     float64           `json:"scope1And2"`
	Scope3         float64           `json:"scope3"`
	TargetProgress int               `json:"targetProgress"`
	Change         map[Field]float64 `json:"change"`
}

// ComputeTrend builds the summary cards over the full dataset. A scope whose
// previous value is zero reports a 100% change when it is now positive, 0
// otherwise. TargetProgress is the rounded reduction since the earliest year.
func ComputeTrend(all Dataset) Trend {
	t := Trend{Change: map[Field]float64{FieldScope1: 0, FieldScope2: 0, FieldScope3: 0}}
	sorted := all.Sorted()
	if len(sorted) == 0 {
		return t
	}

	enabled := DefaultSeries()
	latest := sorted[len(sorted)-1]
	t.Year = latest.Year

	total := sumScopes(latest, enabled)
	t.Total, _ = total.Float64()
	t.Scope1And2, _ = toDecimal(latest, FieldScope1).Add(toDecimal(latest, FieldScope2)).Float64()
	t.Scope3, _ = toDecimal(latest, FieldScope3).Float64()

	if baseline := sumScopes(sorted[0], enabled); baseline.IsPositive() {
		t.TargetProgress = int(percentChange(baseline, total).Neg().Round(0).IntPart())
	}

	if len(sorted) < 2 {
		return t
	}
	prev := sorted[len(sorted)-2]
	t.PreviousYear = prev.Year
	for _, scope := range ScopeFields() {
		cur, before := toDecimal(latest, scope), toDecimal(prev, scope)
		switch {
		case before.IsPositive():
			t.Change[scope] = percentChange(before, cur).InexactFloat64()
		case cur.IsPositive():
			t.Change[scope] = 100
		}
	}
	return t
}

// =============================================================================
// CHART KIND
// =============================================================================

// ChartKind selects how chart data is shaped.
type ChartKind string

const (
	ChartLine ChartKind = "line"
	ChartArea ChartKind = "area"
	ChartBar  ChartKind = "bar"
	ChartPie  ChartKind = "pie"
)

// ParseChartKind validates a chart type. Empty means line.
func ParseChartKind(s string) (ChartKind, error) {
	switch k := ChartKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return ChartLine, nil
	case ChartLine, ChartArea, ChartBar, ChartPie:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChartKind, s)
}

// Snapshot reports whether the kind shows one aggregate per series rather
// than a series per year.
func (k ChartKind) Snapshot() bool { return k == ChartPie }

