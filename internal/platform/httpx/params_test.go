package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/apperror"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestPathID(t *testing.T) {
	c := newContext("/")
	c.SetParamNames("id")
	c.SetParamValues("42")
	id, err := PathID(c, "id")
	if err != nil || id != 42 {
		t.Fatalf("PathID() = %d, %v", id, err)
	}

	c.SetParamValues("abc")
	if _, err := PathID(c, "id"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	c.SetParamValues("0")
	if _, err := PathID(c, "id"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error for zero, got %v", err)
	}
}

func TestQueryID(t *testing.T) {
	id, err := QueryID(newContext("/?lab_id=7"), "lab_id")
	if err != nil || id == nil || *id != 7 {
		t.Fatalf("QueryID() = %v, %v", id, err)
	}
	id, err = QueryID(newContext("/"), "lab_id")
	if err != nil || id != nil {
		t.Fatalf("expected nil for absent param, got %v, %v", id, err)
	}
	if _, err := QueryID(newContext("/?lab_id=-1"), "lab_id"); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestQueryDateRange(t *testing.T) {
	r, err := QueryDateRange(newContext("/?start_date=2024-03-01&end_date=2024-03-02"))
	if err != nil {
		t.Fatalf("QueryDateRange() error: %v", err)
	}
	from, to := r.Bounds()
	if !from.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected from %v", from)
	}
	if !to.Equal(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected to %v", to)
	}

	if _, err := QueryDateRange(newContext("/?start_date=03/01/2024")); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := QueryDateRange(newContext("/?start_date=2024-03-05&end_date=2024-03-01")); err == nil {
		t.Error("expected error for inverted range")
	}

	r, err = QueryDateRange(newContext("/"))
	if err != nil || r.From != nil || r.To != nil {
		t.Errorf("expected open range, got %+v %v", r, err)
	}
}

func TestDateRangeBounds_KeepsLastInstantOfEndDay(t *testing.T) {
	r, err := QueryDateRange(newContext("/?end_date=2024-01-31"))
	if err != nil {
		t.Fatalf("QueryDateRange() error: %v", err)
	}
	from, until := r.Bounds()
	if from != nil {
		t.Errorf("expected open lower bound, got %v", from)
	}
	late := time.Date(2024, 1, 31, 23, 59, 59, 500_000_000, time.UTC)
	if !late.Before(*until) {
		t.Errorf("%v should fall before upper bound %v", late, until)
	}
	nextDay := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if nextDay.Before(*until) {
		t.Errorf("%v should not fall before upper bound %v", nextDay, until)
	}
}
