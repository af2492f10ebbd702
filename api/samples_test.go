/*
samples_test.go - Tests for the demo dataset endpoints

PURPOSE:
	Loading a sample replaces the dataset, is recorded in the import history
	and becomes the current sample.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSamples(t *testing.T) {
	_, router := setupTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/api/samples", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	samples := decode[[]SampleDTO](t, rec)
	require.Len(t, samples, 2)
	assert.Equal(t, "default", samples[0].ID)
	assert.Equal(t, []int{2019, 2020, 2021, 2022, 2023}, samples[0].Years)
	assert.Equal(t, "scope-trend", samples[1].ID)
	assert.Len(t, samples[1].Years, 11)
}

func TestLoadSample_ReplacesDataset(t *testing.T) {
	// GIVEN: A year outside the sample
	_, router := setupTestServer(t)
	require.Equal(t, http.StatusCreated,
		doRequest(t, router, http.MethodPost, "/api/emissions", map[string]any{"year": 2010, "scope1": 1}).Code)

	// WHEN: Loading the scope-trend sample
	rec := doRequest(t, router, http.MethodPost, "/api/samples/load", map[string]string{"sample_id": "scope-trend"})

	// THEN: Only the sample years remain
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[RecordsResponse](t, doRequest(t, router, http.MethodGet, "/api/emissions", nil))
	assert.Equal(t, 11, list.Count)
	assert.Equal(t, 2015, list.Data[0].Year)
	assert.Equal(t, http.StatusNotFound, doRequest(t, router, http.MethodGet, "/api/emissions/2010", nil).Code)

	// AND: It is the current sample and appears in the import history
	current := decode[SampleDTO](t, doRequest(t, router, http.MethodGet, "/api/samples/current", nil))
	assert.Equal(t, "scope-trend", current.ID)

	runs := decode[[]ImportRunDTO](t, doRequest(t, router, http.MethodGet, "/api/emissions/imports", nil))
	require.Len(t, runs, 1)
	assert.Equal(t, "sample:scope-trend", runs[0].Source)
	assert.Len(t, runs[0].CreatedYears, 11)
}

func TestLoadSample_Errors(t *testing.T) {
	_, router := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing id", map[string]string{}},
		{"unknown id", map[string]string{"sample_id": "nope"}},
		{"bad json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/samples/load", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetCurrentSample_NoneLoaded(t *testing.T) {
	_, router := setupTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/api/samples/current", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}
