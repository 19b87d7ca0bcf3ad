package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
	"github.com/farmtrace/provenance/cmd/verifier/service"
	"github.com/farmtrace/provenance/common/bootstrap"
	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/models"
)

// IdentifierHandler handles QR identifier minting
type IdentifierHandler struct {
	components *bootstrap.Components
	issueSvc   *service.IssuanceService
}

// NewIdentifierHandler creates a new identifier handler
func NewIdentifierHandler(components *bootstrap.Components, issueSvc *service.IssuanceService) *IdentifierHandler {
	return &IdentifierHandler{
		components: components,
		issueSvc:   issueSvc,
	}
}

// Mint handles identifier minting for printable QR labels
// POST /api/v1/identifiers
func (h *IdentifierHandler) Mint(c echo.Context) error {
	ctx := c.Request().Context()

	var req vmodels.MintRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	kind := models.IdentifierKind(req.Kind)
	if kind != models.KindProduct && kind != models.KindBatch {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "kind must be \"product\" or \"batch\"",
		})
	}

	h.components.Logger.Info("minting identifier", "kind", req.Kind, "subject_id", req.ID)

	issued, err := h.issueSvc.Mint(ctx, kind, req.ID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": fmt.Sprintf("%s %d not found on ledger", req.Kind, req.ID),
			})
		case errors.Is(err, service.ErrBatchNotSynchronized):
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"error": "batch not yet synchronized, retry shortly",
			})
		}
		h.components.Logger.Error("failed to mint identifier",
			"kind", req.Kind,
			"subject_id", req.ID,
			"error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to mint identifier",
		})
	}

	return c.JSON(http.StatusCreated, issued)
}

// Stats reports issued identifier counts for one subject, split by
// nonce assurance
// GET /api/v1/identifiers/:kind/:id
func (h *IdentifierHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	kind := models.IdentifierKind(c.Param("kind"))
	if kind != models.KindProduct && kind != models.KindBatch {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "kind must be \"product\" or \"batch\"",
		})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "id must be a non-negative integer",
		})
	}

	counts, err := h.issueSvc.IssuanceStats(ctx, kind, id)
	if err != nil {
		h.components.Logger.Error("failed to read issuance stats",
			"kind", string(kind),
			"subject_id", id,
			"error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to read issuance stats",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"kind":       string(kind),
		"subject_id": id,
		"issued":     counts,
	})
}
