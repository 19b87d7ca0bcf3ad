package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/cmd/verifier/container"
	"github.com/farmtrace/provenance/cmd/verifier/handlers"
	"github.com/farmtrace/provenance/cmd/verifier/middleware"
	commonmw "github.com/farmtrace/provenance/common/middleware"
	"github.com/farmtrace/provenance/common/ratelimit"
)

// RegisterBatchRoutes registers ledger batch endpoints. Reads stay
// public; assembly, movement and purchase broadcast transactions and
// require the API key.
func RegisterBatchRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewBatchHandler(c.Components, c.RegistryService)
	cfg := c.Components.Config

	reads := e.Group("/api/v1/batches")
	{
		reads.GET("/:id", h.Get) // Ledger batch read-through
	}

	submits := e.Group("/api/v1/batches")
	submits.Use(middleware.RequireAPIKey(cfg.Service.APIKey))
	if cfg.RateLimit.Enabled {
		submits.Use(commonmw.TieredRateLimitMiddleware(c.RateLimiter, ratelimit.TierSubmit))
	}
	{
		submits.POST("", h.Create)                      // Submit createBatch
		submits.PUT("/:id/location", h.UpdateLocation)  // Submit updateBatchLocation
		submits.POST("/:id/purchase", h.Purchase)       // Submit purchaseBatch
	}
}
