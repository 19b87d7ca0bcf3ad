package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/cmd/verifier/models"
	"github.com/farmtrace/provenance/cmd/verifier/service"
	"github.com/farmtrace/provenance/common/bootstrap"
)

// VerifyHandler handles public verification endpoints
type VerifyHandler struct {
	components *bootstrap.Components
	verifySvc  *service.VerificationService
}

// NewVerifyHandler creates a new verification handler
func NewVerifyHandler(components *bootstrap.Components, verifySvc *service.VerificationService) *VerifyHandler {
	return &VerifyHandler{
		components: components,
		verifySvc:  verifySvc,
	}
}

// Resolve handles scanned payload verification
// POST /api/v1/verify
func (h *VerifyHandler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.VerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	if req.Payload == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "payload is required",
		})
	}

	h.components.Logger.Debug("resolving scanned payload", "length", len(req.Payload))

	result := h.verifySvc.Resolve(ctx, req.Payload)

	return c.JSON(http.StatusOK, result)
}

// VerifyProduct handles direct product verification for pre-nonce labels
// GET /api/v1/verify/product/:id
func (h *VerifyHandler) VerifyProduct(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a non-negative integer",
		})
	}

	result := h.verifySvc.VerifyProduct(ctx, id)

	return c.JSON(http.StatusOK, result)
}

// VerifyBatch handles direct batch verification for pre-nonce labels
// GET /api/v1/verify/batch/:id
func (h *VerifyHandler) VerifyBatch(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a non-negative integer",
		})
	}

	result := h.verifySvc.VerifyBatch(ctx, id)

	return c.JSON(http.StatusOK, result)
}
