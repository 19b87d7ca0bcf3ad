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

// ProductHandler handles ledger product reads and registrations
type ProductHandler struct {
	components  *bootstrap.Components
	registrySvc *service.RegistryService
}

// NewProductHandler creates a new product handler
func NewProductHandler(components *bootstrap.Components, registrySvc *service.RegistryService) *ProductHandler {
	return &ProductHandler{
		components:  components,
		registrySvc: registrySvc,
	}
}

// Get handles ledger product read-through
// GET /api/v1/products/:id
func (h *ProductHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a non-negative integer",
		})
	}

	product, err := h.registrySvc.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": fmt.Sprintf("product %d not found on ledger", id),
			})
		}
		h.components.Logger.Error("failed to read product", "product_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to read product",
		})
	}

	return c.JSON(http.StatusOK, product)
}

// Create handles product registration
// POST /api/v1/products
func (h *ProductHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreateProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "name is required",
		})
	}

	h.components.Logger.Info("registering product", "name", req.Name, "from", req.From)

	crop, txRef, err := h.registrySvc.CreateProduct(ctx, &req)
	if err != nil {
		return submitError(c, h.components, "register product", err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"product": crop,
		"tx_ref":  txRef,
	})
}
