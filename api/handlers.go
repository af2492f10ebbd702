/*
handlers.go - HTTP API handlers for the emissions inventory

PURPOSE:
  Exposes the emissions engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every rule to the emissions package.

ENDPOINTS:
  Records:
    GET    /api/emissions                 List records (startYear, endYear)
    POST   /api/emissions                 Create a year
    GET    /api/emissions/{year}          Get one year
    PUT    /api/emissions/{year}          Update (the year itself may change)
    DELETE /api/emissions/{year}          Delete a year

  Import/Export:
    POST   /api/emissions/bulk-import     JSON batch {data, overwrite}
    POST   /api/emissions/import          CSV upload (body or multipart "file")
    GET    /api/emissions/export          CSV download
    GET    /api/emissions/imports         Import history

  Aggregates:
    GET    /api/emissions/stats/summary   Total, baseline, reduction
    GET    /api/emissions/stats/trend     Latest-year summary cards
    GET    /api/emissions/snapshot        Per-series sums (pie)
    GET    /api/emissions/chart           Series or snapshot by chart type
    GET    /api/emissions/taxonomy        Scopes, subcategories, CSV columns

REQUEST FLOW:
  1. Parse HTTP request (body or query string)
  2. Validate request shape (validator tags, query parsing)
  3. Call the Inventory, which runs rollup + validation before writing
  4. Serialize response
  5. Map errors to status codes (handleError)

ERROR HANDLING:
  - 400: Field validation, malformed CSV, bad query
  - 404: Year not found
  - 409: Year collision, non-overwriting import over existing years
  - 500: Storage failures (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - samples.go: Demo dataset loader
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/warp/emissions-engine/emissions"
	"github.com/warp/emissions-engine/metrics"
)

// maxUploadBytes caps CSV uploads.
const maxUploadBytes = 10 << 20

// defaultImportRunLimit is the history length returned when no limit is given.
const defaultImportRunLimit = 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Inventory *emissions.Inventory
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger

	validate *validator.Validate

	// Track currently loaded sample
	mu            sync.Mutex
	currentSample string
}

// NewHandler creates a new handler over the given inventory. m may be nil.
func NewHandler(inv *emissions.Inventory, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		Inventory: inv,
		Metrics:   m,
		Logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// RECORD ENDPOINTS
// =============================================================================

// ListEmissions returns records in the requested range, ascending by year.
// GET /api/emissions?startYear=2019&endYear=2023
func (h *Handler) ListEmissions(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRangeQuery(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	all, err := h.Inventory.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	start, end := q.bounds(all)
	data := emissions.FilterByRange(all, start, end)
	writeJSON(w, http.StatusOK, RecordsResponse{Data: data, Count: len(data)})
}

// GetEmission returns one year.
// GET /api/emissions/{year}
func (h *Handler) GetEmission(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	rec, err := h.Inventory.Get(r.Context(), year)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateEmission adds a new year. Scope totals are derived from any
// subcategories in the body.
// POST /api/emissions
func (h *Handler) CreateEmission(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	rec, err := h.checkForm(r, req.Form(), nil)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	saved, err := h.Inventory.Create(ctx, rec)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.Logger.Info().Int("year", saved.Year).Msg("emissions record created")
	writeJSON(w, http.StatusCreated, saved)
}

// UpdateEmission replaces a year. A body without a year keeps the path year.
// PUT /api/emissions/{year}
func (h *Handler) UpdateEmission(w http.ResponseWriter, r *http.Request) {
	priorYear, ok := yearParam(w, r)
	if !ok {
		return
	}
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Inventory.Get(ctx, priorYear); err != nil {
		h.handleError(w, r, err)
		return
	}

	form := req.Form()
	if strings.TrimSpace(form[emissions.FieldYear]) == "" {
		form[emissions.FieldYear] = strconv.Itoa(priorYear)
	}
	rec, err := h.checkForm(r, form, &priorYear)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	saved, err := h.Inventory.Update(ctx, priorYear, rec)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.Logger.Info().Int("prior_year", priorYear).Int("year", saved.Year).Msg("emissions record updated")
	writeJSON(w, http.StatusOK, saved)
}

// DeleteEmission removes a year.
// DELETE /api/emissions/{year}
func (h *Handler) DeleteEmission(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	if err := h.Inventory.Delete(r.Context(), year); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.Logger.Info().Int("year", year).Msg("emissions record deleted")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Emissions data for year %d deleted", year),
		"year":    year,
	})
}

// checkForm parses and validates a form against the current years so every
// field error is reported at once. priorYear is excluded from the collision
// check on update. The Inventory validates again under its lock.
func (h *Handler) checkForm(r *http.Request, form emissions.Form, priorYear *int) (emissions.Record, error) {
	all, err := h.Inventory.List(r.Context())
	if err != nil {
		return emissions.Record{}, err
	}
	years := make([]int, 0, len(all))
	for _, y := range all.Years() {
		if priorYear != nil && y == *priorYear {
			continue
		}
		years = append(years, y)
	}

	rec, errs := emissions.ValidateForm(form, years)
	if !errs.Valid() {
		return rec, &emissions.ValidationError{Year: rec.Year, Fields: errs}
	}
	return rec, nil
}

// =============================================================================
// IMPORT / EXPORT ENDPOINTS
// =============================================================================

// BulkImport merges a JSON batch. With overwrite false, any existing year
// aborts the import with 409.
// POST /api/emissions/bulk-import
func (h *Handler) BulkImport(w http.ResponseWriter, r *http.Request) {
	var req BulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.handleError(w, r, describeValidation(err))
		return
	}

	records := make([]emissions.Record, 0, len(req.Data))
	for _, row := range req.Data {
		rec, errs := row.Form().Record()
		if !errs.Valid() {
			h.handleError(w, r, &emissions.ValidationError{Year: rec.Year, Fields: errs})
			return
		}
		records = append(records, rec)
	}

	overwrite := req.Overwrite == nil || *req.Overwrite
	report, err := h.Inventory.BulkImport(r.Context(), records, overwrite, "api:bulk-import")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.observeImport(report)
	h.Logger.Info().
		Ints("created", report.CreatedYears).
		Ints("updated", report.UpdatedYears).
		Msg("bulk import applied")
	writeJSON(w, http.StatusOK, toImportResponse(report))
}

// ImportCSV parses an uploaded CSV and imports it, replacing existing years.
// The file is either the raw body or the "file" part of a multipart form.
// POST /api/emissions/import
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var in io.Reader = r.Body
	source := "upload"
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing file upload", err)
			return
		}
		defer file.Close()
		in = file
		source = header.Filename
	} else if name := r.URL.Query().Get("filename"); name != "" {
		source = name
	}

	report, err := h.Inventory.ImportCSV(r.Context(), in, source)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.observeImport(report)
	h.Logger.Info().
		Str("source", source).
		Ints("created", report.CreatedYears).
		Ints("updated", report.UpdatedYears).
		Msg("csv import applied")
	writeJSON(w, http.StatusOK, toImportResponse(report))
}

// ExportCSV downloads the whole dataset with every column.
// GET /api/emissions/export
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Inventory.ExportCSV(r.Context(), &buf); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="emissions_data.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ListImports returns the most recent import runs, newest first.
// GET /api/emissions/imports?limit=20
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	limit := defaultImportRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	runs, err := h.Inventory.ImportRuns(r.Context(), limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dtos := make([]ImportRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toImportRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AGGREGATE ENDPOINTS
// =============================================================================

// StatsSummary compares the latest and earliest years of the range.
// GET /api/emissions/stats/summary?startYear=&endYear=&series=scope1,scope2
func (h *Handler) StatsSummary(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRangeQuery(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	enabled, err := q.seriesSet()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	all, err := h.Inventory.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	start, end := q.bounds(all)
	stats := emissions.ComputeStats(emissions.FilterByRange(all, start, end), all, enabled)
	writeJSON(w, http.StatusOK, toStatsDTO(start, end, stats))
}

// StatsTrend returns the summary cards over the whole dataset.
// GET /api/emissions/stats/trend
func (h *Handler) StatsTrend(w http.ResponseWriter, r *http.Request) {
	all, err := h.Inventory.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrendDTO(emissions.ComputeTrend(all)))
}

// Snapshot sums each enabled series over the range.
// GET /api/emissions/snapshot?series=scope1,scope3_waste
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRangeQuery(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	enabled, err := q.seriesSet()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	all, err := h.Inventory.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	start, end := q.bounds(all)
	sums := emissions.AggregateForSnapshot(emissions.FilterByRange(all, start, end), enabled)
	writeJSON(w, http.StatusOK, toSnapshot(sums))
}

// Chart returns chart data shaped for the requested type: per-year points
// for line, area and bar, one aggregate per series for pie.
// GET /api/emissions/chart?type=pie&series=scope1&startYear=2020
func (h *Handler) Chart(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseRangeQuery(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	kind, err := emissions.ParseChartKind(q.Type)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	enabled, err := q.seriesSet()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	all, err := h.Inventory.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	start, end := q.bounds(all)
	filtered := emissions.FilterByRange(all, start, end)

	resp := ChartDTO{Type: kind, Series: []string{}}
	for _, f := range enabled.Fields() {
		resp.Series = append(resp.Series, string(f))
	}
	if kind.Snapshot() {
		resp.Snapshot = toSnapshot(emissions.AggregateForSnapshot(filtered, enabled))
	} else {
		resp.Points = toSeries(emissions.Series(filtered, enabled))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Taxonomy lists scopes, subcategories and the CSV column order.
// GET /api/emissions/taxonomy
func (h *Handler) Taxonomy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toTaxonomyDTO())
}

// =============================================================================
// HELPERS
// =============================================================================

// yearParam reads the {year} path parameter, writing a 400 when it is not an
// integer.
func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, false
	}
	return year, true
}

// handleError maps engine errors to HTTP responses.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.observeError(err)

	var perr *paramError
	if errors.As(err, &perr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid parameters",
			Code:    "invalid_parameters",
			Details: perr.Problems,
		})
		return
	}

	resp := ErrorResponse{Error: err.Error()}
	var status int
	switch {
	case emissions.IsConflict(err):
		status = http.StatusConflict
		resp.Code = "conflict"
	case emissions.IsNotFound(err):
		status = http.StatusNotFound
		resp.Code = "not_found"
	case emissions.IsClientError(err):
		status = http.StatusBadRequest
		resp.Code = "invalid_request"
	default:
		h.Logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	var verr *emissions.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "Validation failed"
		resp.Code = "validation"
		resp.Details = err.Error()
		resp.Fields = make(map[string]FieldErrorDTO, len(verr.Fields))
		for f, kind := range verr.Fields {
			resp.Fields[string(f)] = FieldErrorDTO{Kind: string(kind), Message: kind.Message()}
		}
	}
	var cerr *emissions.CSVError
	if errors.As(err, &cerr) {
		resp.Error = "Invalid CSV"
		resp.Code = string(cerr.Kind)
		resp.Details = cerr.Error()
		resp.Row = cerr.Row
	}
	var ierr *emissions.ImportConflictError
	if errors.As(err, &ierr) {
		resp.Details = map[string]any{"years": ierr.Years}
	}
	writeJSON(w, status, resp)
}

func (h *Handler) observeError(err error) {
	if h.Metrics != nil {
		h.Metrics.ObserveError(err)
	}
}

func (h *Handler) observeImport(report emissions.ImportReport) {
	if h.Metrics != nil {
		h.Metrics.ObserveImport(report)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
