package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/staffboard/internal/application"
)

const maxRequestBody = 1 << 20

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

// parseInstant accepts RFC 3339 timestamps or YYYY-MM-DD dates, the latter
// meaning midnight in loc.
func parseInstant(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 timestamp or YYYY-MM-DD date")
	}
	return t, nil
}

// rangeFromQuery reads from, to and department. Missing bounds default to the
// calendar month containing now.
func rangeFromQuery(r *http.Request, now time.Time, loc *time.Location) (application.RangeQuery, error) {
	q := r.URL.Query()
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}

	local := now.In(loc)
	query := application.RangeQuery{
		From:         time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc),
		DepartmentID: strings.TrimSpace(q.Get("department")),
	}
	query.To = query.From.AddDate(0, 1, 0)

	if raw := q.Get("from"); raw != "" {
		from, err := parseInstant(raw, loc)
		if err != nil {
			vErr.FieldErrors["from"] = err.Error()
		} else {
			query.From = from
			if q.Get("to") == "" {
				query.To = from.AddDate(0, 1, 0)
			}
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := parseInstant(raw, loc)
		if err != nil {
			vErr.FieldErrors["to"] = err.Error()
		} else {
			query.To = to
		}
	}

	if vErr.HasErrors() {
		return application.RangeQuery{}, vErr
	}
	return query, nil
}
