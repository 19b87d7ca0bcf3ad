package service

import (
	"context"
	"errors"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/jackc/pgx/v5"

	"github.com/farmtrace/provenance/common/clients"
	"github.com/farmtrace/provenance/common/identifier"
	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/models"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
)

// VerificationService resolves scanned identifiers to verification
// results. It never returns errors; a scan endpoint has no use for
// transport failures, so every outcome folds into the result message.
type VerificationService struct {
	ledger  LedgerReader
	history HistorySource
	crops   CropStore
	batches BatchStore
	anchors AnchorStore
	pricing PricePredictor
	metrics Metrics
	logger  Logger
}

// NewVerificationService creates the resolver. pricing may be nil when no
// prediction service is configured; metrics may be nil.
func NewVerificationService(
	ledgerReader LedgerReader,
	history HistorySource,
	crops CropStore,
	batches BatchStore,
	anchors AnchorStore,
	pricing PricePredictor,
	metrics Metrics,
	logger Logger,
) *VerificationService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &VerificationService{
		ledger:  ledgerReader,
		history: history,
		crops:   crops,
		batches: batches,
		anchors: anchors,
		pricing: pricing,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve parses one scanned payload and verifies whatever it points at.
func (s *VerificationService) Resolve(ctx context.Context, payload string) models.VerificationResult {
	ident, ok := identifier.Parse(payload)
	if !ok {
		s.logger.Debug("discarded unparseable scan payload", "payload_length", len(payload))
		return s.finish(models.VerificationResult{Message: "unrecognized identifier"})
	}
	return s.VerifyByIdentifier(ctx, ident)
}

// VerifyByIdentifier branches on the identifier kind. Product identifiers
// always resolve against the ledger; the nonce on them is audit-only.
// Batch identifiers split on the nonce: public ones take the hybrid path,
// legacy verbose ones read the ledger directly.
func (s *VerificationService) VerifyByIdentifier(ctx context.Context, ident models.Identifier) models.VerificationResult {
	switch ident.Kind {
	case models.KindProduct:
		return s.VerifyProduct(ctx, ident.ID)
	case models.KindBatch:
		if ident.IsPublic() {
			return s.verifyBatchAnchored(ctx, ident)
		}
		return s.VerifyBatch(ctx, ident.ID)
	}
	return s.finish(models.VerificationResult{Message: "unrecognized identifier"})
}

// VerifyProduct resolves a product id against ledger state.
func (s *VerificationService) VerifyProduct(ctx context.Context, id uint64) models.VerificationResult {
	res := models.VerificationResult{Kind: models.KindProduct, ID: id, SourceOfTruth: models.SourceLedger}

	product, custody, err := s.ledger.ReadProductWithHistory(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			res.Message = "not found on ledger"
			return s.finish(res)
		}
		s.logger.Error("product verification failed", "product_id", id, "error", err)
		res.Message = "verification temporarily unavailable"
		return s.finish(res)
	}

	res.Valid = true
	res.Product = &product
	res.CustodyChain = s.fillCustodyTimes(id, custody)
	res.Message = "verified against ledger record"
	res.PriceAdvisory = s.priceAdvisory(ctx, id)
	return s.finish(res)
}

// VerifyBatch resolves a batch id directly against ledger state. Legacy
// verbose identifiers carry no nonce, so there is no anchoring row to
// cross-reference.
func (s *VerificationService) VerifyBatch(ctx context.Context, id uint64) models.VerificationResult {
	res := models.VerificationResult{Kind: models.KindBatch, ID: id, SourceOfTruth: models.SourceLedger}

	batch, err := s.ledger.ReadBatch(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			res.Message = "not found on ledger"
			return s.finish(res)
		}
		s.logger.Error("batch verification failed", "batch_id", id, "error", err)
		res.Message = "verification temporarily unavailable"
		return s.finish(res)
	}

	res.Valid = true
	res.Batch = &batch
	res.Message = "verified against ledger record"
	return s.finish(res)
}

// verifyBatchAnchored resolves a public batch identifier against its
// anchoring row. Public identifiers are only ever minted alongside an
// anchor, so a missing row is authoritative and the ledger is not
// consulted at all; scanners probing nonces never turn into ledger
// traffic.
func (s *VerificationService) verifyBatchAnchored(ctx context.Context, ident models.Identifier) models.VerificationResult {
	res := models.VerificationResult{Kind: models.KindBatch, ID: ident.ID, SourceOfTruth: models.SourceHybrid}

	anchor, err := s.anchors.Get(ctx, int64(ident.ID), ident.Nonce)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			res.Message = "unknown identifier"
			return s.finish(res)
		}
		s.logger.Error("anchor lookup failed", "batch_id", ident.ID, "error", err)
		res.Message = "verification temporarily unavailable"
		return s.finish(res)
	}

	// The anchored tx is usually confirmed already, either flagged by the
	// recorder or still sitting in the synchronizer's history window. Only
	// a cold cache falls through to a ledger read.
	confirmed := anchor.Verified || historyHasBatchTx(s.history, models.TxRef(anchor.TxHash))

	var ledgerBatch *models.Batch
	if !confirmed {
		batch, err := s.ledger.ReadBatch(ctx, ident.ID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				res.Message = "anchored batch not found on ledger"
				return s.finish(res)
			}
			s.logger.Error("anchor confirmation read failed", "batch_id", ident.ID, "error", err)
			res.Message = "verification temporarily unavailable"
			return s.finish(res)
		}
		ledgerBatch = &batch
	}

	current, batch, err := s.currentSnapshot(ctx, ident.ID, ledgerBatch)
	if err != nil {
		s.logger.Error("batch snapshot load failed", "batch_id", ident.ID, "error", err)
		res.Message = "verification temporarily unavailable"
		return s.finish(res)
	}

	currentHash, err := current.Hash()
	if err != nil {
		s.logger.Error("batch snapshot hash failed", "batch_id", ident.ID, "error", err)
		res.Message = "verification temporarily unavailable"
		return s.finish(res)
	}

	if currentHash != anchor.DataHash {
		s.logDrift(ident, anchor.Snapshot, current)
		res.Message = "provenance record drift detected"
		return s.finish(res)
	}

	res.Valid = true
	res.Batch = batch
	res.Message = "verified against anchored record"
	return s.finish(res)
}

// currentSnapshot loads the live immutable batch fields for the drift
// comparison, preferring the local projection and falling back to a
// ledger read. The batch comes back alongside for the result payload.
func (s *VerificationService) currentSnapshot(ctx context.Context, batchID uint64, fromLedger *models.Batch) (vmodels.BatchSnapshot, *models.Batch, error) {
	rec, err := s.batches.GetByID(ctx, int64(batchID))
	if err == nil {
		snapshot := vmodels.BatchSnapshot{
			BatchID:    rec.BatchID,
			Handler:    rec.Handler,
			ProductIDs: rec.ProductIDs,
		}
		return snapshot, recordToBatch(rec), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return vmodels.BatchSnapshot{}, nil, err
	}

	batch := fromLedger
	if batch == nil {
		read, err := s.ledger.ReadBatch(ctx, batchID)
		if err != nil {
			return vmodels.BatchSnapshot{}, nil, err
		}
		batch = &read
	}

	ids := make([]int64, len(batch.ProductIDs))
	for i, id := range batch.ProductIDs {
		ids[i] = int64(id)
	}
	snapshot := vmodels.BatchSnapshot{
		BatchID:    int64(batch.ID),
		Handler:    string(batch.Handler),
		ProductIDs: ids,
	}
	return snapshot, batch, nil
}

// historyHasBatchTx reports whether the recorded BatchCreated history
// contains the given transaction.
func historyHasBatchTx(history HistorySource, ref models.TxRef) bool {
	events := history.History(func(e models.DomainEvent) bool {
		return e.Kind == models.EventBatchCreated && e.TransactionRef == ref
	})
	return len(events) > 0
}

// fillCustodyTimes enriches ledger-held custody entries with transition
// timestamps from the recorded event history. Direct ledger reads return
// holders only. Entries keep a nil Since when the bounded history window
// no longer covers their transition.
func (s *VerificationService) fillCustodyTimes(productID uint64, chain []models.CustodyEntry) []models.CustodyEntry {
	if len(chain) == 0 {
		return chain
	}

	events := s.history.History(func(e models.DomainEvent) bool {
		switch e.Kind {
		case models.EventProductCreated:
			return e.ProductCreated.ProductID == productID
		case models.EventOwnershipTransferred:
			return e.OwnershipTransferred.ProductID == productID
		}
		return false
	})

	// History is newest first; custody replay wants ledger order.
	pos := 1
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		switch event.Kind {
		case models.EventProductCreated:
			if !event.OccurredAt.IsZero() {
				t := event.OccurredAt
				chain[0].Since = &t
			}
		case models.EventOwnershipTransferred:
			if pos >= len(chain) {
				return chain
			}
			if chain[pos].Holder == event.OwnershipTransferred.To {
				if !event.OccurredAt.IsZero() {
					t := event.OccurredAt
					chain[pos].Since = &t
				}
				pos++
			}
		}
	}
	return chain
}

// priceAdvisory asks the external pricing service for a market estimate.
// Best effort: any failure logs at debug and the advisory is omitted.
func (s *VerificationService) priceAdvisory(ctx context.Context, productID uint64) *models.PriceAdvisory {
	if s.pricing == nil || !s.pricing.Enabled() {
		return nil
	}

	crop, err := s.crops.GetByID(ctx, int64(productID))
	if err != nil {
		return nil
	}
	if crop.CropType == nil || crop.State == nil {
		return nil
	}

	now := time.Now()
	input := clients.PredictionInput{
		Crop:  *crop.CropType,
		State: *crop.State,
		Month: int(now.Month()),
		Year:  now.Year(),
	}
	if crop.AreaHectares != nil {
		input.Area = *crop.AreaHectares
	}

	prediction, err := s.pricing.Predict(ctx, input)
	if err != nil {
		s.logger.Debug("price advisory unavailable", "product_id", productID, "error", err)
		return nil
	}

	advisory := &models.PriceAdvisory{
		Predicted: prediction.PredictedPrice,
		Currency:  prediction.Currency,
	}
	if len(prediction.ConfidenceInterval) == 2 {
		advisory.Low = prediction.ConfidenceInterval[0]
		advisory.High = prediction.ConfidenceInterval[1]
	}
	return advisory
}

// logDrift logs a merge-patch diff of the anchored record against the
// live one so operators can see exactly which fields moved.
func (s *VerificationService) logDrift(ident models.Identifier, anchored, live vmodels.BatchSnapshot) {
	anchoredJSON, aErr := anchored.Canonical()
	liveJSON, lErr := live.Canonical()
	if aErr != nil || lErr != nil {
		s.logger.Error("anchored record drift detected", "batch_id", ident.ID, "nonce", ident.Nonce)
		return
	}

	diff, err := jsonpatch.CreateMergePatch(anchoredJSON, liveJSON)
	if err != nil {
		s.logger.Error("anchored record drift detected", "batch_id", ident.ID, "nonce", ident.Nonce)
		return
	}
	s.logger.Error("anchored record drift detected",
		"batch_id", ident.ID,
		"nonce", ident.Nonce,
		"diff", string(diff),
	)
}

// finish stamps the outcome metric on the way out.
func (s *VerificationService) finish(res models.VerificationResult) models.VerificationResult {
	source := string(res.SourceOfTruth)
	if source == "" {
		source = "none"
	}
	s.metrics.VerificationCompleted(source, res.Valid)
	return res
}

// recordToBatch converts a projection row to the shared batch model.
func recordToBatch(rec *vmodels.BatchRecord) *models.Batch {
	ids := make([]uint64, len(rec.ProductIDs))
	for i, id := range rec.ProductIDs {
		ids[i] = uint64(id)
	}
	return &models.Batch{
		ID:         uint64(rec.BatchID),
		ProductIDs: ids,
		Handler:    models.Address(rec.Handler),
		CreatedAt:  rec.CreatedAt,
		Location:   rec.Location,
		StatusCode: uint8(rec.StatusCode),
	}
}
