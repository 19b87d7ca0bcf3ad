package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/farmtrace/provenance/cmd/verifier/models"
	"github.com/farmtrace/provenance/cmd/verifier/service"
	"github.com/farmtrace/provenance/common/bootstrap"
	"github.com/farmtrace/provenance/common/ledger"
)

// BatchHandler handles ledger batch reads and distribution submissions
type BatchHandler struct {
	components  *bootstrap.Components
	registrySvc *service.RegistryService
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(components *bootstrap.Components, registrySvc *service.RegistryService) *BatchHandler {
	return &BatchHandler{
		components:  components,
		registrySvc: registrySvc,
	}
}

// Get handles ledger batch read-through
// GET /api/v1/batches/:id
func (h *BatchHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a non-negative integer",
		})
	}

	batch, err := h.registrySvc.GetBatch(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": fmt.Sprintf("batch %d not found on ledger", id),
			})
		}
		h.components.Logger.Error("failed to read batch", "batch_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to read batch",
		})
	}

	return c.JSON(http.StatusOK, batch)
}

// Create handles batch assembly from registered products
// POST /api/v1/batches
func (h *BatchHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreateBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	if len(req.ProductIDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "product_ids must not be empty",
		})
	}

	if req.Location == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "location is required",
		})
	}

	h.components.Logger.Info("assembling batch",
		"products", len(req.ProductIDs),
		"location", req.Location,
		"from", req.From)

	batch, err := h.registrySvc.CreateBatch(ctx, &req)
	if err != nil {
		return submitError(c, h.components, "assemble batch", err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"batch": batch,
	})
}

// UpdateLocation handles a custody checkpoint as the batch moves
// PUT /api/v1/batches/:id/location
func (h *BatchHandler) UpdateLocation(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a non-negative integer",
		})
	}

	var req models.UpdateLocationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	if req.Location == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "location is required",
		})
	}

	h.components.Logger.Info("updating batch location", "batch_id", id, "location", req.Location)

	txRef, err := h.registrySvc.UpdateBatchLocation(ctx, id, &req)
	if err != nil {
		return submitError(c, h.components, "update batch location", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"batch_id": id,
		"location": req.Location,
		"tx_ref":   txRef,
	})
}

// Purchase handles the terminal purchase of a whole batch
// POST /api/v1/batches/:id/purchase
func (h *BatchHandler) Purchase(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a non-negative integer",
		})
	}

	// body is optional, an empty post purchases with the session account
	var req models.PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	h.components.Logger.Info("purchasing batch", "batch_id", id, "from", req.From)

	txRef, err := h.registrySvc.PurchaseBatch(ctx, id, &req)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": fmt.Sprintf("batch %d not found on ledger", id),
			})
		}
		return submitError(c, h.components, "purchase batch", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"batch_id": id,
		"tx_ref":   txRef,
	})
}
