package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{Validation("sample_type", "unknown value %q", "Blood"), ErrValidation},
		{NotFound("queue entry", 4), ErrNotFound},
		{Conflict("queue entry", "sample exists"), ErrConflict},
		{Transient("begin tx", errors.New("conn reset")), ErrTransient},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if !errors.Is(wrapped, tc.sentinel) {
			t.Errorf("expected %v to match %v", tc.err, tc.sentinel)
		}
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("delete: %w", NotFound("sample", 12))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatal("expected NotFoundError")
	}
	if nf.Entity != "sample" || nf.ID != 12 {
		t.Errorf("unexpected fields: %+v", nf)
	}
	if nf.Error() != "sample 12 not found" {
		t.Errorf("unexpected message: %s", nf.Error())
	}
}

func TestStatusCode(t *testing.T) {
	cases := map[error]int{
		Validation("x", "bad"):               http.StatusBadRequest,
		NotFound("result", 1):                http.StatusNotFound,
		Conflict("result", "already exists"): http.StatusConflict,
		Transient("query", errors.New("x")):  http.StatusServiceUnavailable,
		errors.New("boom"):                   http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := StatusCode(err); got != want {
			t.Errorf("StatusCode(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestHTTP_HidesInternalErrors(t *testing.T) {
	err := HTTP(errors.New("pq: relation does not exist"))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Message != "internal server error" {
		t.Errorf("expected generic message, got %v", httpErr.Message)
	}
}

func TestHTTP_Nil(t *testing.T) {
	if HTTP(nil) != nil {
		t.Error("expected nil")
	}
}
