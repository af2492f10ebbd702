package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/emissions-engine/emissions"
)

// rangeQuery holds the query-string parameters shared by the list, stats,
// snapshot and chart endpoints. A zero year means "unbounded".
type rangeQuery struct {
	StartYear int      `validate:"omitempty,min=1900,max=2100"`
	EndYear   int      `validate:"omitempty,min=1900,max=2100"`
	Series    []string `validate:"dive,required"`
	Type      string   `validate:"omitempty,oneof=line area bar pie"`
}

// parseRangeQuery reads startYear, endYear, series and type. series may be
// repeated or comma-separated.
func (h *Handler) parseRangeQuery(r *http.Request) (rangeQuery, error) {
	values := r.URL.Query()
	var q rangeQuery
	var err error

	if q.StartYear, err = intParam(values.Get("startYear"), "startYear"); err != nil {
		return q, err
	}
	if q.EndYear, err = intParam(values.Get("endYear"), "endYear"); err != nil {
		return q, err
	}
	for _, v := range values["series"] {
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				q.Series = append(q.Series, key)
			}
		}
	}
	q.Type = strings.ToLower(strings.TrimSpace(values.Get("type")))

	if err := h.validate.Struct(q); err != nil {
		return q, describeValidation(err)
	}
	if q.StartYear != 0 && q.EndYear != 0 && q.StartYear > q.EndYear {
		return q, fmt.Errorf("%w: %d > %d", emissions.ErrInvalidRange, q.StartYear, q.EndYear)
	}
	return q, nil
}

// bounds resolves the unbounded ends of the range against the dataset.
func (q rangeQuery) bounds(all emissions.Dataset) (int, int) {
	return emissions.ResolveRange(all, q.StartYear, q.EndYear)
}

// seriesSet returns the requested series, or the three scopes by default.
func (q rangeQuery) seriesSet() (emissions.SeriesSet, error) {
	if len(q.Series) == 0 {
		return emissions.DefaultSeries(), nil
	}
	return emissions.ParseSeries(q.Series)
}

func intParam(s, name string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", emissions.ErrInvalidRange, name)
	}
	return v, nil
}

// paramError reports query or body parameters that failed validation.
type paramError struct {
	Problems []string
}

func (e *paramError) Error() string {
	return "invalid parameters: " + strings.Join(e.Problems, "; ")
}

// describeValidation flattens validator errors into readable problems.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return &paramError{Problems: problems}
}
