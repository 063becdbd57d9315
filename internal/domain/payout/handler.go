package payout

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/refermed/refermed/internal/domain/referral"
	"github.com/refermed/refermed/internal/platform/auth"
	"github.com/refermed/refermed/pkg/pagination"
)

type Handler struct {
	gateway *Gateway
	syncLim int
}

func NewHandler(gateway *Gateway, syncBatchSize int) *Handler {
	return &Handler{gateway: gateway, syncLim: syncBatchSize}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "ops"))
	g.GET("/payments", h.List)
	g.GET("/payments/:id", h.Get)
	g.POST("/payments/:id/submit", h.Submit)
	g.POST("/payments/sync", h.Sync)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ListFilter
	if s := c.QueryParam("agent_id"); s != "" {
		aid, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid agent_id")
		}
		f.AgentID = &aid
	}
	f.Status = Status(c.QueryParam("status"))
	if f.Status != "" && !f.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}

	items, total, err := h.gateway.Payments().List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(referral.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.gateway.Payments().GetByID(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "payment not found")
	}
	return c.JSON(http.StatusOK, p)
}

// Submit retries a pending payment, typically after a failed first attempt
// during settlement.
func (h *Handler) Submit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.gateway.Submit(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(referral.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// Sync triggers an immediate provider status poll outside the scheduled run.
func (h *Handler) Sync(c echo.Context) error {
	finalized, err := h.gateway.SyncStatuses(c.Request().Context(), h.syncLim)
	if err != nil {
		return echo.NewHTTPError(referral.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"finalized": finalized})
}
