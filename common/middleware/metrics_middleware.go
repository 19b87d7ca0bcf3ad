package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/farmtrace/provenance/common/metrics"
)

// RequestMetricsMiddleware records handler latency per route template, so
// /api/v1/verify/product/42 and /product/43 share one series.
func RequestMetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.ObserveRequest(c.Request().Method, path, c.Response().Status, start)
			return err
		}
	}
}
