package labqueue

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
	read.GET("/queue", h.List)
	read.GET("/queue/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabTech))
	write.POST("/queue", h.Create)
	write.PATCH("/queue/:id", h.Update)
	write.PUT("/queue/:id/priority", h.Reprioritize)
	write.DELETE("/queue/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperror.HTTP(err)
	}
	e, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

type listResponse struct {
	*pagination.Response
	TotalProcessed int `json:"total_processed"`
}

func (h *Handler) List(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return apperror.HTTP(err)
	}
	res, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, listResponse{
		Response:       pagination.NewResponse(res.Entries, res.Total, f.Limit, f.Offset),
		TotalProcessed: res.TotalProcessed,
	})
}

func filterFromQuery(c echo.Context) (Filter, error) {
	pg := pagination.FromContext(c)
	f := Filter{Keyword: c.QueryParam("keyword"), Limit: pg.Limit, Offset: pg.Offset}

	var err error
	if f.LabID, err = httpx.QueryID(c, "lab_id"); err != nil {
		return f, err
	}
	if f.BookingID, err = httpx.QueryID(c, "booking_id"); err != nil {
		return f, err
	}
	dr, err := httpx.QueryDateRange(c)
	if err != nil {
		return f, err
	}
	f.From, f.To = dr.Bounds()

	switch raw := c.QueryParam("status"); raw {
	case "":
	case "all":
		f.AllStatuses = true
	default:
		st, err := ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	return f, nil
}

func (h *Handler) Update(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.UpdateStatus(c.Request().Context(), id, p)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Reprioritize(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	var body struct {
		Priority Priority `json:"priority" validate:"required"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&body); err != nil {
		return apperror.HTTP(err)
	}
	e, err := h.svc.Reprioritize(c.Request().Context(), id, body.Priority)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperror.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
