package referral

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/refermed/refermed/internal/platform/auth"
	"github.com/refermed/refermed/internal/platform/fault"
	"github.com/refermed/refermed/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "ops", "agent"))
	g.GET("/referrals", h.List)
	g.GET("/referrals/:id", h.Get)
	g.GET("/referrals/:id/history", h.GetHistory)
	g.POST("/referrals", h.Create)
	g.POST("/referrals/:id/status", h.Advance)
}

// HTTPStatus maps domain errors onto response codes. Shared by the other
// domain handlers.
func HTTPStatus(err error) int {
	switch {
	case fault.IsValidation(err):
		return http.StatusBadRequest
	case fault.IsPrecondition(err):
		return http.StatusConflict
	default:
		if _, ok := fault.AsProvider(err); ok {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

func (h *Handler) Create(c echo.Context) error {
	var ref Referral
	if err := c.Bind(&ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &ref); err != nil {
		return echo.NewHTTPError(HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, ref)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ref, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "referral not found")
	}
	return c.JSON(http.StatusOK, ref)
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

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "referral not found")
	}
	return c.JSON(http.StatusOK, entries)
}

type advanceRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) Advance(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req advanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	ref, err := h.svc.Advance(c.Request().Context(), id, req.Status, actor)
	if err != nil {
		return echo.NewHTTPError(HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, ref)
}
