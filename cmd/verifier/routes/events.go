package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/cmd/verifier/container"
	"github.com/farmtrace/provenance/cmd/verifier/handlers"
	commonmw "github.com/farmtrace/provenance/common/middleware"
)

// RegisterEventRoutes registers the event history endpoint. Filter
// evaluation burns CPU, so the public group shares the per-IP scan
// budget with verification.
func RegisterEventRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewEventHandler(c.Components, c.EventService)
	cfg := c.Components.Config

	grp := e.Group("/api/v1/events")
	if cfg.RateLimit.Enabled {
		grp.Use(commonmw.ScanRateLimitMiddleware(c.RateLimiter, int64(cfg.RateLimit.ScanPerMinute)))
	}
	{
		grp.GET("", h.Query) // Synchronized ledger history, newest first
	}
}
