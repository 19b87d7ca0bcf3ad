package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/cmd/verifier/container"
	"github.com/farmtrace/provenance/cmd/verifier/handlers"
	"github.com/farmtrace/provenance/cmd/verifier/middleware"
	commonmw "github.com/farmtrace/provenance/common/middleware"
	"github.com/farmtrace/provenance/common/ratelimit"
)

// RegisterIdentifierRoutes registers identifier minting endpoints.
// Minting writes audit rows and anchors, so the whole group requires the
// shared API key.
func RegisterIdentifierRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewIdentifierHandler(c.Components, c.IssuanceService)
	cfg := c.Components.Config

	grp := e.Group("/api/v1/identifiers")
	grp.Use(middleware.RequireAPIKey(cfg.Service.APIKey))
	if cfg.RateLimit.Enabled {
		grp.Use(commonmw.TieredRateLimitMiddleware(c.RateLimiter, ratelimit.TierSubmit))
	}
	{
		grp.POST("", h.Mint)           // Mint a QR identifier for a product or batch
		grp.GET("/:kind/:id", h.Stats) // Issued identifier counts for one subject
	}
}
