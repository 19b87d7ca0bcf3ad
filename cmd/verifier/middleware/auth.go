package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is the type used for context keys in middleware
type ContextKey string

// APIKeyKey is the context key under which the caller's API key is stored
const APIKeyKey ContextKey = "api_key"

// ExtractAPIKey middleware copies the X-API-Key header into context when
// present without rejecting anything. Read-only routes use this so the
// tiered rate limiter can account per key.
func ExtractAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-API-Key")
			if key != "" {
				c.Set(string(APIKeyKey), key)
			}
			return next(c)
		}
	}
}

// RequireAPIKey middleware rejects requests whose X-API-Key header is
// missing or does not match the configured shared secret. Mutating routes
// (submits, identifier minting) sit behind this.
func RequireAPIKey(configured string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "X-API-Key header is required",
				})
			}

			if subtle.ConstantTimeCompare([]byte(key), []byte(configured)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "invalid API key",
				})
			}

			c.Set(string(APIKeyKey), key)
			return next(c)
		}
	}
}

// GetAPIKey retrieves the API key from context, returns empty string if not found
func GetAPIKey(c echo.Context) string {
	if key, ok := c.Get(string(APIKeyKey)).(string); ok {
		return key
	}
	return ""
}
