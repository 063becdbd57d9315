package rates

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/refermed/refermed/internal/domain/referral"
	"github.com/refermed/refermed/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "ops"))
	g.GET("/tiers", h.GlobalSchedule)
	g.GET("/agents/:id/tiers", h.OverridesForAgent)
	g.PUT("/agents/:id/tiers", h.SetOverrides)
}

func (h *Handler) GlobalSchedule(c echo.Context) error {
	tiers, err := h.svc.GlobalSchedule(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(referral.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, tiers)
}

func (h *Handler) OverridesForAgent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	tiers, err := h.svc.OverridesForAgent(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(referral.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, tiers)
}

func (h *Handler) SetOverrides(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var tiers []Tier
	if err := c.Bind(&tiers); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetOverrides(c.Request().Context(), id, tiers); err != nil {
		return echo.NewHTTPError(referral.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
