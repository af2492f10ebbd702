package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/emissions-engine/emissions"
)

func TestObserveImport(t *testing.T) {
	m := New()

	m.ObserveImport(emissions.ImportReport{CreatedYears: []int{2022, 2023}, UpdatedYears: []int{2021}})
	m.ObserveImport(emissions.ImportReport{CreatedYears: []int{}, UpdatedYears: []int{2022}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsImported.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsImported.WithLabelValues("updated")))
}

func TestObserveError(t *testing.T) {
	m := New()

	// GIVEN: A CSV failure, a validation failure and an unrelated error
	_, csvErr := emissions.Parse("Scope 1\n5\n", emissions.FullFieldSpec())
	require.Error(t, csvErr)
	m.ObserveError(csvErr)
	m.ObserveError(&emissions.ValidationError{Year: 2023, Fields: emissions.FieldErrors{
		emissions.FieldYear:   emissions.DuplicateYear,
		emissions.FieldScope1: emissions.NegativeValue,
	}})
	m.ObserveError(io.EOF)

	// THEN: Each failure is counted under its labels
	assert.Equal(t, 1.0, testutil.ToFloat64(m.csvFailures.WithLabelValues(string(emissions.MissingYearColumn))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationFailures.WithLabelValues("year", "duplicate_year")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationFailures.WithLabelValues("scope1", "negative_value")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.csvFailures))
}

func TestObserveRequest(t *testing.T) {
	m := New()

	m.ObserveRequest("/api/emissions", "GET", 200, 15*time.Millisecond)
	m.ObserveRequest("/api/emissions", "POST", 400, time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveImport(emissions.ImportReport{CreatedYears: []int{2023}})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(body, `emissions_records_imported_total{outcome="created"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
