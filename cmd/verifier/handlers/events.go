package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/cmd/verifier/service"
	"github.com/farmtrace/provenance/common/bootstrap"
)

// EventHandler serves the synchronized ledger event history
type EventHandler struct {
	components *bootstrap.Components
	eventSvc   *service.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(components *bootstrap.Components, eventSvc *service.EventService) *EventHandler {
	return &EventHandler{
		components: components,
		eventSvc:   eventSvc,
	}
}

// Query handles event history queries, newest first
// GET /api/v1/events?kind=&limit=&filter=
func (h *EventHandler) Query(c echo.Context) error {
	kind := c.QueryParam("kind")
	filter := c.QueryParam("filter")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	events, err := h.eventSvc.Query(kind, limit, filter)
	if err != nil {
		// unknown kind or a filter that does not compile or does not
		// produce a boolean, all caller mistakes
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
