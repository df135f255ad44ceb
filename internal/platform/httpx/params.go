// Package httpx holds the request parsing helpers shared by the domain
// handlers. Parse failures are apperror.ValidationError values.
package httpx

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/apperror"
)

const DateLayout = "2006-01-02"

// PathID parses a positive integer path parameter.
func PathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation(name, "must be a positive integer")
	}
	return id, nil
}

// QueryID parses an optional positive integer query parameter. An absent
// parameter yields nil.
func QueryID(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperror.Validation(name, "must be a positive integer")
	}
	return &id, nil
}

func QueryBool(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}

// DateRange is an inclusive calendar-day range. Either end may be open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Bounds returns the half-open range [start of From, start of the day
// after To). Filters compare the upper bound with <.
func (r DateRange) Bounds() (from, until *time.Time) {
	if r.From != nil {
		f := startOfDay(*r.From)
		from = &f
	}
	if r.To != nil {
		u := startOfDay(*r.To).AddDate(0, 0, 1)
		until = &u
	}
	return from, until
}

// QueryDateRange reads start_date and end_date in YYYY-MM-DD form.
func QueryDateRange(c echo.Context) (DateRange, error) {
	var r DateRange
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start_date", &r.From}, {"end_date", &r.To}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			return r, apperror.Validation(p.name, "must be a date in %s form", DateLayout)
		}
		*p.dst = &t
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return r, apperror.Validation("end_date", "must not be before start_date")
	}
	return r, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
