package labanalytics

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/auth"
	"github.com/labflow/labflow/internal/platform/httpx"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabTech, auth.RolePathologist, auth.RoleReceptionist))
	read.GET("/bookings/:id/completion", h.Completion)
	read.GET("/analytics/processing-time", h.ProcessingTime)
	read.GET("/analytics/throughput", h.Throughput)
	read.GET("/analytics/bookings-per-service", h.BookingsPerService)
	read.GET("/analytics/dashboard", h.Dashboard)
	read.GET("/analytics/export.xlsx", h.Export)
}

func (h *Handler) Completion(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	pct, err := h.svc.ComputeCompletionPercentage(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"booking_id": id, "completion": pct})
}

func processingFilter(c echo.Context) (ProcessingFilter, error) {
	f := ProcessingFilter{IncludeIncomplete: httpx.QueryBool(c, "include_incomplete")}
	var err error
	if f.LabID, err = httpx.QueryID(c, "lab_id"); err != nil {
		return f, err
	}
	if f.LabServiceID, err = httpx.QueryID(c, "lab_service_id"); err != nil {
		return f, err
	}
	dr, err := httpx.QueryDateRange(c)
	if err != nil {
		return f, err
	}
	f.From, f.To = dr.Bounds()
	return f, nil
}

// throughputFilter reads the interval only when one is given; callers
// decide whether it is required.
func throughputFilter(c echo.Context) (ThroughputFilter, error) {
	var f ThroughputFilter
	var err error
	if raw := c.QueryParam("interval"); raw != "" {
		if f.Interval, err = ParseInterval(raw); err != nil {
			return f, err
		}
	}
	if f.LabID, err = httpx.QueryID(c, "lab_id"); err != nil {
		return f, err
	}
	if f.LabServiceID, err = httpx.QueryID(c, "lab_service_id"); err != nil {
		return f, err
	}
	dr, err := httpx.QueryDateRange(c)
	if err != nil {
		return f, err
	}
	f.From, f.To = dr.Bounds()
	return f, nil
}

func (h *Handler) ProcessingTime(c echo.Context) error {
	f, err := processingFilter(c)
	if err != nil {
		return apperror.HTTP(err)
	}
	m, err := h.svc.ComputeAverageProcessingTime(c.Request().Context(), f)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Throughput(c echo.Context) error {
	f, err := throughputFilter(c)
	if err != nil {
		return apperror.HTTP(err)
	}
	series, err := h.svc.GenerateThroughputSeries(c.Request().Context(), f)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, series)
}

func (h *Handler) BookingsPerService(c echo.Context) error {
	counts, err := h.svc.GetTotalBookingsPerService(c.Request().Context())
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (h *Handler) filters(c echo.Context) (ProcessingFilter, ThroughputFilter, error) {
	pf, err := processingFilter(c)
	if err != nil {
		return pf, ThroughputFilter{}, err
	}
	tf, err := throughputFilter(c)
	return pf, tf, err
}

func (h *Handler) Dashboard(c echo.Context) error {
	pf, tf, err := h.filters(c)
	if err != nil {
		return apperror.HTTP(err)
	}
	d, err := h.svc.Dashboard(c.Request().Context(), pf, tf)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Export(c echo.Context) error {
	pf, tf, err := h.filters(c)
	if err != nil {
		return apperror.HTTP(err)
	}
	var buf bytes.Buffer
	if err := h.svc.Export(c.Request().Context(), &buf, pf, tf); err != nil {
		return apperror.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="lab-analytics.xlsx"`)
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}
