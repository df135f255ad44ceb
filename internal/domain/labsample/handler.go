package labsample

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/apperror"
	"github.com/labflow/labflow/internal/platform/auth"
	"github.com/labflow/labflow/internal/platform/httpx"
	"github.com/labflow/labflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabTech, auth.RolePathologist, auth.RoleReceptionist))
	read.GET("/sample-types", h.ListSampleTypes)
	read.GET("/samples", h.List)
	read.GET("/samples/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabTech))
	write.POST("/samples", h.Collect)
	write.DELETE("/samples/:id", h.Remove)
}

func (h *Handler) ListSampleTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, ListSampleTypes())
}

func (h *Handler) Collect(c echo.Context) error {
	var req AddRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperror.HTTP(err)
	}
	if req.CollectedBy == "" {
		req.CollectedBy = auth.UserIDFromContext(c.Request().Context())
	}
	smp, err := h.svc.CollectSample(c.Request().Context(), req)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, smp)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Keyword: c.QueryParam("keyword"), Limit: pg.Limit, Offset: pg.Offset}

	var err error
	if f.LabID, err = httpx.QueryID(c, "lab_id"); err != nil {
		return apperror.HTTP(err)
	}
	if f.BookingID, err = httpx.QueryID(c, "booking_id"); err != nil {
		return apperror.HTTP(err)
	}
	dr, err := httpx.QueryDateRange(c)
	if err != nil {
		return apperror.HTTP(err)
	}
	f.From, f.To = dr.Bounds()
	if raw := c.QueryParam("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			return apperror.HTTP(err)
		}
		f.Status = &st
	}

	page, err := h.svc.List(c.Request().Context(), f, httpx.QueryBool(c, "refresh"))
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page.Samples, page.Total, f.Limit, f.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	smp, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, smp)
}

func (h *Handler) Remove(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	if err := h.svc.RemoveSample(c.Request().Context(), id); err != nil {
		return apperror.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
