package labresult

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
	read.GET("/results", h.ListResults)
	read.GET("/results/:id", h.GetResult)
	read.GET("/results/:id/readings", h.ListReadings)
	read.GET("/bookings/:id/result", h.GetAggregatedResult)
	read.GET("/bookings/:id/tracking", h.TrackBooking)
	read.GET("/bookings/:id/approval", h.GetApproval)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabTech))
	write.POST("/results", h.SubmitResult)
	write.DELETE("/results/:id", h.RemoveResult)
	write.POST("/results/:id/readings", h.AddReading)

	review := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RolePathologist))
	review.POST("/results/:id/verify", h.VerifyResult)
	review.POST("/bookings/:id/archive", h.ArchiveBooking)
	review.DELETE("/bookings/:id/archive", h.UnarchiveBooking)
	review.POST("/bookings/:id/approval", h.CreateApproval)
	review.PATCH("/bookings/:id/approval", h.UpdateApproval)
	review.DELETE("/bookings/:id/approval", h.DeleteApproval)
}

func actor(c echo.Context, given string) string {
	if given != "" {
		return given
	}
	return auth.UserIDFromContext(c.Request().Context())
}

func (h *Handler) SubmitResult(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperror.HTTP(err)
	}
	req.CreatedBy = actor(c, req.CreatedBy)
	res, err := h.svc.SubmitResult(c.Request().Context(), req)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListResults(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Keyword: c.QueryParam("keyword"), Limit: pg.Limit, Offset: pg.Offset}

	var err error
	if f.LabID, err = httpx.QueryID(c, "lab_id"); err != nil {
		return apperror.HTTP(err)
	}
	if f.Verified, err = ParseVerificationFilter(c.QueryParam("verified")); err != nil {
		return apperror.HTTP(err)
	}
	dr, err := httpx.QueryDateRange(c)
	if err != nil {
		return apperror.HTTP(err)
	}
	f.From, f.To = dr.Bounds()

	results, total, err := h.svc.ListResults(c.Request().Context(), f)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(results, total, f.Limit, f.Offset))
}

func (h *Handler) GetResult(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	res, err := h.svc.GetResult(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RemoveResult(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	if err := h.svc.RemoveResult(c.Request().Context(), id); err != nil {
		return apperror.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListReadings(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	readings, err := h.svc.ListReadings(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, readings)
}

func (h *Handler) AddReading(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	var in ReadingInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return apperror.HTTP(err)
	}
	rd, err := h.svc.AddResultReading(c.Request().Context(), id, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, rd)
}

func (h *Handler) VerifyResult(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.VerifiedBy = actor(c, req.VerifiedBy)
	v, err := h.svc.VerifyResult(c.Request().Context(), id, req)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetAggregatedResult(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	agg, err := h.svc.GetAggregatedResult(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, agg)
}

func (h *Handler) TrackBooking(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	t, err := h.svc.TrackBooking(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ArchiveBooking(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	l, err := h.svc.ArchiveBooking(c.Request().Context(), id, actor(c, ""))
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) UnarchiveBooking(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	if err := h.svc.UnarchiveBooking(c.Request().Context(), id); err != nil {
		return apperror.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateApproval(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ApprovedBy = actor(c, req.ApprovedBy)
	a, created, err := h.svc.CreateApproval(c.Request().Context(), id, req)
	if err != nil {
		return apperror.HTTP(err)
	}
	if created {
		return c.JSON(http.StatusCreated, a)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetApproval(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	a, err := h.svc.GetApproval(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateApproval(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	var p ApprovalPatch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateApproval(c.Request().Context(), id, p)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteApproval(c echo.Context) error {
	id, err := httpx.PathID(c, "id")
	if err != nil {
		return apperror.HTTP(err)
	}
	if err := h.svc.DeleteApproval(c.Request().Context(), id); err != nil {
		return apperror.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
