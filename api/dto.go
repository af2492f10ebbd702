/*
dto.go - Data Transfer Objects for API requests/responses

PURPOSE:

	Defines the JSON structures exchanged with the dashboard. Records travel
	as flat objects keyed by field ("year", "scope1", "scope1_dieselFleet",
	...), the same keys used in CSV specs and chart series.

CONVENTIONS:
  - Requests carry raw JSON values so "12.5", 12.5 and "" can all be
    accepted and reported per field
  - Display figures (stats, trend, snapshot) are rounded to one decimal
  - Errors always use ErrorResponse

SEE ALSO:
  - handlers.go: Uses these DTOs
  - query.go: Query-string parameters
*/
package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/warp/emissions-engine/emissions"
)

// =============================================================================
// RECORD DTOs
// =============================================================================

// RecordRequest is the body of a create or update. Values may be JSON
// numbers, numeric strings, "" or null. Unknown keys are ignored.
type RecordRequest map[string]json.RawMessage

// Form converts the request into the raw form the engine validates.
func (req RecordRequest) Form() emissions.Form {
	form := emissions.Form{}
	for key, raw := range req {
		field := emissions.Field(key)
		if field != emissions.FieldYear && !field.Valid() {
			continue
		}
		form[field] = rawText(raw)
	}
	return form
}

// rawText renders a JSON value as form text. Strings are unquoted, null
// becomes blank, anything else is passed through for the numeric parser to
// accept or reject.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// RecordsResponse lists records ascending by year.
type RecordsResponse struct {
	Data  []emissions.Record `json:"data"`
	Count int                `json:"count"`
}

// =============================================================================
// IMPORT DTOs
// =============================================================================

// BulkImportRequest imports a batch of records. Overwrite defaults to true.
type BulkImportRequest struct {
	Data      []RecordRequest `json:"data" validate:"required,min=1"`
	Overwrite *bool           `json:"overwrite"`
}

// ImportResults lists the years an import touched.
type ImportResults struct {
	Created []int `json:"created"`
	Updated []int `json:"updated"`
}

// ImportResponse is returned by bulk and CSV imports.
type ImportResponse struct {
	Message string        `json:"message"`
	Results ImportResults `json:"results"`
}

func toImportResponse(report emissions.ImportReport) ImportResponse {
	return ImportResponse{
		Message: "Successfully imported emissions data: " +
			strconv.Itoa(len(report.CreatedYears)) + " created, " +
			strconv.Itoa(len(report.UpdatedYears)) + " updated",
		Results: ImportResults{
			Created: report.CreatedYears,
			Updated: report.UpdatedYears,
		},
	}
}

// ImportRunDTO is one entry of the import history.
type ImportRunDTO struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	RowCount     int    `json:"rowCount"`
	CreatedYears []int  `json:"createdYears"`
	UpdatedYears []int  `json:"updatedYears"`
	CreatedAt    string `json:"createdAt"`
}

func toImportRunDTO(run emissions.ImportRun) ImportRunDTO {
	return ImportRunDTO{
		ID:           run.ID,
		Source:       run.Source,
		RowCount:     run.RowCount,
		CreatedYears: run.CreatedYears,
		UpdatedYears: run.UpdatedYears,
		CreatedAt:    run.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// AGGREGATE DTOs
// =============================================================================

// StatsDTO is the dashboard's stats card.
type StatsDTO struct {
	StartYear           int     `json:"startYear"`
	EndYear             int     `json:"endYear"`
	TotalEmissions      float64 `json:"totalEmissions"`
	BaselineEmissions   float64 `json:"baselineEmissions"`
	ReductionPercentage float64 `json:"reductionPercentage"`
	TrackedScopes       int     `json:"trackedScopes"`
	LatestYear          int     `json:"latestYear,omitempty"`
	BaselineYear        int     `json:"baselineYear,omitempty"`
}

func toStatsDTO(start, end int, s emissions.Stats) StatsDTO {
	return StatsDTO{
		StartYear:           start,
		EndYear:             end,
		TotalEmissions:      emissions.RoundForDisplay(s.Total),
		BaselineEmissions:   emissions.RoundForDisplay(s.Baseline),
		ReductionPercentage: emissions.RoundForDisplay(s.ReductionPercent),
		TrackedScopes:       s.TrackedScopeCount,
		LatestYear:          s.LatestYear,
		BaselineYear:        s.BaselineYear,
	}
}

// TrendDTO is the Emissions page summary cards.
type TrendDTO struct {
	Year           int                `json:"year"`
	PreviousYear   int                `json:"previousYear,omitempty"`
	TotalEmissions float64            `json:"totalEmissions"`
	Scope1And2     float64            `json:"scope1And2"`
	Scope3         float64            `json:"scope3"`
	TargetProgress int                `json:"targetProgress"`
	Change         map[string]float64 `json:"change"`
}

func toTrendDTO(t emissions.Trend) TrendDTO {
	change := make(map[string]float64, len(t.Change))
	for f, v := range t.Change {
		change[string(f)] = emissions.RoundForDisplay(v)
	}
	return TrendDTO{
		Year:           t.Year,
		PreviousYear:   t.PreviousYear,
		TotalEmissions: emissions.RoundForDisplay(t.Total),
		Scope1And2:     emissions.RoundForDisplay(t.Scope1And2),
		Scope3:         emissions.RoundForDisplay(t.Scope3),
		TargetProgress: t.TargetProgress,
		Change:         change,
	}
}

// SnapshotEntry is one slice of a snapshot (pie) chart.
type SnapshotEntry struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// toSnapshot orders the aggregation by taxonomy so slices keep a stable
// position between requests.
func toSnapshot(sums map[emissions.Field]float64) []SnapshotEntry {
	out := make([]SnapshotEntry, 0, len(sums))
	for _, f := range emissions.NumericFields() {
		v, ok := sums[f]
		if !ok {
			continue
		}
		out = append(out, SnapshotEntry{Key: string(f), Label: f.Label(), Value: emissions.RoundForDisplay(v)})
	}
	return out
}

// SeriesPointDTO is one year of a line, area or bar chart.
type SeriesPointDTO map[string]float64

func toSeries(points []emissions.SeriesPoint) []SeriesPointDTO {
	out := make([]SeriesPointDTO, 0, len(points))
	for _, p := range points {
		dto := SeriesPointDTO{"year": float64(p.Year)}
		for f, v := range p.Values {
			dto[string(f)] = v
		}
		out = append(out, dto)
	}
	return out
}

// ChartDTO is the chart endpoint's response. Snapshot kinds fill Snapshot,
// the others fill Points.
type ChartDTO struct {
	Type     emissions.ChartKind `json:"type"`
	Series   []string            `json:"series"`
	Points   []SeriesPointDTO    `json:"points,omitempty"`
	Snapshot []SnapshotEntry     `json:"snapshot,omitempty"`
}

// =============================================================================
// TAXONOMY & SAMPLE DTOs
// =============================================================================

// FieldDTO names one field.
type FieldDTO struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// ScopeDTO is a scope with its subcategories.
type ScopeDTO struct {
	Key           string     `json:"key"`
	Label         string     `json:"label"`
	Subcategories []FieldDTO `json:"subcategories"`
}

// TaxonomyDTO is the field tree plus the CSV column order.
type TaxonomyDTO struct {
	Scopes     []ScopeDTO `json:"scopes"`
	CSVColumns []FieldDTO `json:"csvColumns"`
}

func toTaxonomyDTO() TaxonomyDTO {
	var dto TaxonomyDTO
	for _, s := range emissions.Taxonomy() {
		scope := ScopeDTO{Key: string(s.Key), Label: s.Label, Subcategories: []FieldDTO{}}
		for _, sub := range s.Subcategories {
			scope.Subcategories = append(scope.Subcategories, FieldDTO{Key: string(sub.Key), Label: sub.Label})
		}
		dto.Scopes = append(dto.Scopes, scope)
	}
	for _, col := range emissions.FullFieldSpec() {
		dto.CSVColumns = append(dto.CSVColumns, FieldDTO{Key: string(col.Key), Label: col.Label})
	}
	return dto
}

// SampleDTO describes a demo dataset.
type SampleDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Years       []int  `json:"years"`
}

func toSampleDTO(s emissions.Sample) SampleDTO {
	return SampleDTO{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Years:       emissions.Dataset(s.Records).Sorted().Years(),
	}
}

// LoadSampleRequest selects the sample to load.
type LoadSampleRequest struct {
	SampleID string `json:"sample_id" validate:"required"`
}

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// FieldErrorDTO is one field-level validation failure.
type FieldErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string                   `json:"error"`
	Code    string                   `json:"code,omitempty"`
	Details any                      `json:"details,omitempty"`
	Fields  map[string]FieldErrorDTO `json:"fields,omitempty"`
	Row     int                      `json:"row,omitempty"`
}
