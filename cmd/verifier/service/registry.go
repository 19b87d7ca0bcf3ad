package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/lifecycle"
	"github.com/farmtrace/provenance/common/models"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
)

// RegistryService submits registry writes to the ledger and keeps the
// local projection warm. The ledger is the source of truth: a projection
// write that fails after a successful submit is logged and left for the
// event stream to heal, never surfaced to the caller.
type RegistryService struct {
	ledger  LedgerGateway
	crops   CropStore
	batches BatchStore
	metrics Metrics
	logger  Logger
}

// NewRegistryService creates the registry write service.
func NewRegistryService(gateway LedgerGateway, crops CropStore, batches BatchStore, metrics Metrics, logger Logger) *RegistryService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &RegistryService{
		ledger:  gateway,
		crops:   crops,
		batches: batches,
		metrics: metrics,
		logger:  logger,
	}
}

// GetProduct reads one product straight from ledger state.
func (s *RegistryService) GetProduct(ctx context.Context, id uint64) (models.Product, error) {
	product, err := s.ledger.ReadProduct(ctx, id)
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to read product %d: %w", id, err)
	}
	return product, nil
}

// GetBatch reads one batch straight from ledger state.
func (s *RegistryService) GetBatch(ctx context.Context, id uint64) (models.Batch, error) {
	batch, err := s.ledger.ReadBatch(ctx, id)
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to read batch %d: %w", id, err)
	}
	return batch, nil
}

// CreateProduct submits a product registration and projects the row
// locally. Returns the projected crop row and the transaction ref.
func (s *RegistryService) CreateProduct(ctx context.Context, req *vmodels.CreateProductRequest) (*vmodels.Crop, models.TxRef, error) {
	from, err := s.resolveFrom(ctx, req.From)
	if err != nil {
		return nil, "", err
	}
	s.warnMissingRole(ctx, ledger.RoleFarmer, from, "createProduct")

	start := time.Now()
	txRef, err := s.ledger.CreateProduct(ctx, from, ledger.CreateProductInput{
		Name:            req.Name,
		Description:     req.Description,
		ContentHash:     req.ContentHash,
		PriceMinorUnits: req.PriceMinorUnits,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create product: %w", err)
	}
	s.metrics.ObserveSubmit("createProduct", start)

	productID, err := s.newestProductID(ctx)
	if err != nil {
		return nil, "", err
	}

	crop := &vmodels.Crop{
		ProductID:       int64(productID),
		Name:            req.Name,
		Description:     req.Description,
		ContentHash:     req.ContentHash,
		Originator:      string(from),
		CurrentHolder:   string(from),
		PriceMinorUnits: int64(req.PriceMinorUnits),
		StatusCode:      lifecycle.StatusHarvested,
		CropType:        req.CropType,
		State:           req.State,
		AreaHectares:    req.AreaHectares,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.crops.Upsert(ctx, crop); err != nil {
		s.logger.Error("crop projection write failed, event stream will heal it",
			"product_id", productID, "error", err)
	}

	s.logger.Info("product created",
		"product_id", productID,
		"name", req.Name,
		"originator", from,
		"tx_ref", txRef,
	)
	return crop, txRef, nil
}

// CreateBatch submits a batch registration and projects the row locally.
func (s *RegistryService) CreateBatch(ctx context.Context, req *vmodels.CreateBatchRequest) (*vmodels.BatchRecord, error) {
	from, err := s.resolveFrom(ctx, req.From)
	if err != nil {
		return nil, err
	}
	s.warnMissingRole(ctx, ledger.RoleDistributor, from, "createBatch")

	start := time.Now()
	txRef, err := s.ledger.CreateBatch(ctx, from, req.ProductIDs, req.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	s.metrics.ObserveSubmit("createBatch", start)

	batchID, err := s.newestBatchID(ctx)
	if err != nil {
		return nil, err
	}

	productIDs := make([]int64, len(req.ProductIDs))
	for i, id := range req.ProductIDs {
		productIDs[i] = int64(id)
	}
	rec := &vmodels.BatchRecord{
		BatchID:    int64(batchID),
		Handler:    string(from),
		ProductIDs: productIDs,
		Location:   req.Location,
		StatusCode: lifecycle.StatusPacked,
		TxRef:      string(txRef),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.batches.Upsert(ctx, rec); err != nil {
		s.logger.Error("batch projection write failed, event stream will heal it",
			"batch_id", batchID, "error", err)
	}

	s.logger.Info("batch created",
		"batch_id", batchID,
		"products", len(req.ProductIDs),
		"handler", from,
		"tx_ref", txRef,
	)
	return rec, nil
}

// UpdateBatchLocation submits a location change for a batch in transit.
func (s *RegistryService) UpdateBatchLocation(ctx context.Context, batchID uint64, req *vmodels.UpdateLocationRequest) (models.TxRef, error) {
	from, err := s.resolveFrom(ctx, req.From)
	if err != nil {
		return "", err
	}
	s.warnMissingRole(ctx, ledger.RoleDistributor, from, "updateBatchLocation")

	start := time.Now()
	txRef, err := s.ledger.UpdateBatchLocation(ctx, from, batchID, req.Location)
	if err != nil {
		return "", fmt.Errorf("failed to update batch %d location: %w", batchID, err)
	}
	s.metrics.ObserveSubmit("updateBatchLocation", start)

	if err := s.batches.UpdateLocation(ctx, int64(batchID), req.Location); err != nil {
		s.logger.Error("batch projection write failed, event stream will heal it",
			"batch_id", batchID, "error", err)
	}

	s.logger.Info("batch location updated", "batch_id", batchID, "location", req.Location, "tx_ref", txRef)
	return txRef, nil
}

// PurchaseBatch prices the batch by summing its member products and
// submits the purchase for that total.
func (s *RegistryService) PurchaseBatch(ctx context.Context, batchID uint64, req *vmodels.PurchaseRequest) (models.TxRef, error) {
	from, err := s.resolveFrom(ctx, req.From)
	if err != nil {
		return "", err
	}
	s.warnMissingRole(ctx, ledger.RoleRetailer, from, "purchaseBatch")

	batch, err := s.ledger.ReadBatch(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("failed to read batch %d: %w", batchID, err)
	}

	var total uint64
	for _, productID := range batch.ProductIDs {
		product, err := s.ledger.ReadProduct(ctx, productID)
		if err != nil {
			return "", fmt.Errorf("failed to price product %d: %w", productID, err)
		}
		total += product.PriceMinorUnits
	}

	start := time.Now()
	txRef, err := s.ledger.PurchaseBatch(ctx, from, batchID, total)
	if err != nil {
		return "", fmt.Errorf("failed to purchase batch %d: %w", batchID, err)
	}
	s.metrics.ObserveSubmit("purchaseBatch", start)

	if err := s.batches.RecordPurchase(ctx, int64(batchID), string(from), int64(total)); err != nil {
		s.logger.Error("batch projection write failed, event stream will heal it",
			"batch_id", batchID, "error", err)
	}

	s.logger.Info("batch purchased",
		"batch_id", batchID,
		"buyer", from,
		"total_minor_units", total,
		"tx_ref", txRef,
	)
	return txRef, nil
}

// resolveFrom picks the submitting account: the requested address when
// given, otherwise the active account of a wallet session.
func (s *RegistryService) resolveFrom(ctx context.Context, requested string) (models.Address, error) {
	if requested != "" {
		return models.Address(requested), nil
	}
	handle, err := s.ledger.Connect(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open wallet session: %w", err)
	}
	return handle.Active, nil
}

// warnMissingRole logs when the submitting account lacks the role the
// contract checks for this operation. Advisory only; the ledger enforces
// roles and will revert, this just makes the refusal legible up front.
func (s *RegistryService) warnMissingRole(ctx context.Context, role ledger.Role, account models.Address, op string) {
	ok, err := s.ledger.HasRole(ctx, role, account)
	if err != nil || ok {
		return
	}
	s.logger.Warn("account lacks role for operation, ledger may revert",
		"account", account,
		"role", role,
		"operation", op,
	)
}

// newestProductID attributes the id of the product the registry just
// created. Ids are assigned densely from zero and this service owns the
// only submitting wallet, so the newest id is the count minus one.
func (s *RegistryService) newestProductID(ctx context.Context) (uint64, error) {
	count, err := s.ledger.ProductCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read product count: %w", err)
	}
	if count == 0 {
		return 0, errors.New("product count is zero after create")
	}
	return count - 1, nil
}

// newestBatchID mirrors newestProductID for batches.
func (s *RegistryService) newestBatchID(ctx context.Context) (uint64, error) {
	count, err := s.ledger.BatchCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read batch count: %w", err)
	}
	if count == 0 {
		return 0, errors.New("batch count is zero after create")
	}
	return count - 1, nil
}
