package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/cmd/verifier/container"
	"github.com/farmtrace/provenance/cmd/verifier/handlers"
	"github.com/farmtrace/provenance/cmd/verifier/middleware"
	commonmw "github.com/farmtrace/provenance/common/middleware"
	"github.com/farmtrace/provenance/common/ratelimit"
)

// RegisterProductRoutes registers ledger product endpoints. Reads stay
// public; registration broadcasts a transaction and requires the API key.
func RegisterProductRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewProductHandler(c.Components, c.RegistryService)
	cfg := c.Components.Config

	reads := e.Group("/api/v1/products")
	{
		reads.GET("/:id", h.Get) // Ledger product read-through
	}

	submits := e.Group("/api/v1/products")
	submits.Use(middleware.RequireAPIKey(cfg.Service.APIKey))
	if cfg.RateLimit.Enabled {
		submits.Use(commonmw.TieredRateLimitMiddleware(c.RateLimiter, ratelimit.TierSubmit))
	}
	{
		submits.POST("", h.Create) // Submit createProduct
	}
}
