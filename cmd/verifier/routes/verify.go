package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/cmd/verifier/container"
	"github.com/farmtrace/provenance/cmd/verifier/handlers"
	commonmw "github.com/farmtrace/provenance/common/middleware"
)

// RegisterVerifyRoutes registers the public verification endpoints.
// Scans arrive unauthenticated from consumer phones, so the group sits
// behind the per-IP sliding window instead of an API key.
func RegisterVerifyRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewVerifyHandler(c.Components, c.VerificationService)
	cfg := c.Components.Config

	grp := e.Group("/api/v1/verify")
	if cfg.RateLimit.Enabled {
		grp.Use(commonmw.ScanRateLimitMiddleware(c.RateLimiter, int64(cfg.RateLimit.ScanPerMinute)))
	}
	{
		grp.POST("", h.Resolve)                  // Resolve a scanned QR payload
		grp.GET("/product/:id", h.VerifyProduct) // Verify a product by ledger id (pre-nonce labels)
		grp.GET("/batch/:id", h.VerifyBatch)     // Verify a batch by ledger id (pre-nonce labels)
	}
}
