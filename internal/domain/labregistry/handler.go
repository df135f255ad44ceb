package labregistry

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
	read.GET("/labs", h.ListLaboratories)
	read.GET("/labs/:id/services", h.ListLabServices)
	read.GET("/lab-services/:id", h.GetLabService)
	read.GET("/parameters/:id/boundaries", h.ListBoundaries)
	read.GET("/parameters/:id/classify", h.ClassifyReading)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabTech))
	write.POST("/labs", h.CreateLaboratory)
	write.POST("/labs/:id/services", h.CreateLabService)
}

func (h *Handler) CreateLaboratory(c echo.Context) error {
	var lab Laboratory
	if err := c.Bind(&lab); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&lab); err != nil {
		return apperror.HTTP(err)
	}
	if err := h.svc.CreateLaboratory(c.Request().Context(), &lab); err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, lab)
}

func (h *Handler) ListLaboratories(c echo.Context) error {
	pg := pagination.FromContext(c)
	labs, total, err := h.svc.ListLaboratories(c.Request().Context(), LabFilter{
		Keyword: c.QueryParam("keyword"),
		Limit:   pg.Limit,
		Offset:  pg.Offset,
	})
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(labs, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateLabService(c echo.Context) error {
	labID, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	var svc LabService
	if err := c.Bind(&svc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&svc); err != nil {
		return apperror.HTTP(err)
	}
	svc.LabID = labID
	if err := h.svc.CreateLabService(c.Request().Context(), &svc); err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, svc)
}

func (h *Handler) ListLabServices(c echo.Context) error {
	labID, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLabServices(c.Request().Context(), ServiceFilter{
		LabID:   &labID,
		Keyword: c.QueryParam("keyword"),
		Limit:   pg.Limit,
		Offset:  pg.Offset,
	})
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetLabService(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	svc, err := h.svc.GetLabService(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, svc)
}

func (h *Handler) ListBoundaries(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	bounds, err := h.svc.ListBoundaries(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, bounds)
}

func (h *Handler) ClassifyReading(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	value := c.QueryParam("value")
	if value == "" {
		return apperror.HTTP(apperror.Validation("value", "is required"))
	}
	class, err := h.svc.ClassifyReading(c.Request().Context(), id, value)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"parameter_id":   id,
		"value":          value,
		"classification": class,
	})
}
