package report

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refermed/refermed/internal/domain/referral"
	"github.com/refermed/refermed/internal/platform/auth"
)

// IngestHandler exposes a manual trigger for the ingestion run. It shares the
// exact code path with the scheduled job and the CLI command.
type IngestHandler struct {
	svc      *Service
	producer Producer
	batch    int
}

func NewIngestHandler(svc *Service, producer Producer, batchSize int) *IngestHandler {
	return &IngestHandler{svc: svc, producer: producer, batch: batchSize}
}

func (h *IngestHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "ops"))
	g.POST("/ingest/run", h.Run)
}

func (h *IngestHandler) Run(c echo.Context) error {
	if h.producer == nil {
		return echo.NewHTTPError(http.StatusConflict, "no report source configured")
	}
	stored, err := h.svc.Ingest(c.Request().Context(), h.producer, h.batch)
	if err != nil {
		return echo.NewHTTPError(referral.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"stored": stored})
}
