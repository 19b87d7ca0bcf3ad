package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/common/bootstrap"
	"github.com/farmtrace/provenance/common/ledger"
)

// submitError maps a failed ledger submission onto an HTTP response.
// Contract rejections and wallet states carry enough context to show the
// caller; anything else stays a generic 500.
func submitError(c echo.Context, components *bootstrap.Components, op string, err error) error {
	var revert *ledger.RevertError
	switch {
	case errors.As(err, &revert):
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error": fmt.Sprintf("%s rejected by contract: %s", op, revert.Reason),
		})
	case errors.Is(err, ledger.ErrNoAccounts):
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"error": "no ledger account available for submission",
		})
	case errors.Is(err, ledger.ErrUserRejected):
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error": "submission rejected by wallet holder",
		})
	case errors.Is(err, ledger.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, map[string]interface{}{
			"error": "transaction was submitted but not included in time",
		})
	}

	components.Logger.Error("ledger submission failed", "operation", op, "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": fmt.Sprintf("failed to %s", op),
	})
}
