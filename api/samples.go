/*
samples.go - Demo dataset loaders

PURPOSE:

	Populates the inventory with the dashboard's built-in demo data so the
	charts and stats have something to show.

AVAILABLE SAMPLES:

	default:      2019-2023 with the full subcategory breakdown
	scope-trend:  2015-2025, scope totals only

HOW LOADING WORKS:
 1. Look up the sample by id
 2. Replace the whole dataset with its records (Inventory.Load)
 3. Record the run in the import history
 4. Remember the sample as the current one

USAGE VIA API:

	POST /api/samples/load
	{"sample_id": "default"}

NOTE:

	Loading a sample discards every existing record.

SEE ALSO:
  - emissions/samples.go: Sample definitions
  - cmd/emissions/samples.go: CLI equivalent
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/emissions-engine/emissions"
)

// ListSamples returns all available samples.
// GET /api/samples
func (h *Handler) ListSamples(w http.ResponseWriter, r *http.Request) {
	samples := emissions.Samples()
	dtos := make([]SampleDTO, 0, len(samples))
	for _, s := range samples {
		dtos = append(dtos, toSampleDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentSample returns the last sample loaded by this server, or null.
// GET /api/samples/current
func (h *Handler) GetCurrentSample(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentSample
	h.mu.Unlock()

	s, ok := emissions.LookupSample(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toSampleDTO(s))
}

// LoadSample replaces the dataset with a sample.
// POST /api/samples/load
func (h *Handler) LoadSample(w http.ResponseWriter, r *http.Request) {
	var req LoadSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.handleError(w, r, describeValidation(err))
		return
	}

	sample, ok := emissions.LookupSample(req.SampleID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown sample", fmt.Errorf("no sample %q", req.SampleID))
		return
	}

	report, err := h.Inventory.Load(r.Context(), sample.Records, "sample:"+sample.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentSample = sample.ID
	h.mu.Unlock()

	h.observeImport(report)
	h.Logger.Info().Str("sample", sample.ID).Int("records", len(sample.Records)).Msg("sample loaded")
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Loaded sample %s", sample.Name),
		"sample":  toSampleDTO(sample),
		"results": ImportResults{Created: report.CreatedYears, Updated: report.UpdatedYears},
	})
}
