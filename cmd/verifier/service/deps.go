// Package service holds the verifier's business logic: resolving scanned
// identifiers to verification results, submitting registry writes to the
// ledger, minting identifiers with their issuance audit, and serving the
// recorded event history.
package service

import (
	"context"
	"time"

	"github.com/farmtrace/provenance/common/clients"
	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/models"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
)

// Logger is the logging interface services depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LedgerReader covers the read-only ledger surface verification needs.
type LedgerReader interface {
	ReadProduct(ctx context.Context, id uint64) (models.Product, error)
	ReadBatch(ctx context.Context, id uint64) (models.Batch, error)
	ReadProductWithHistory(ctx context.Context, id uint64) (models.Product, []models.CustodyEntry, error)
}

// LedgerGateway covers the submitting surface the registry needs on top
// of reads: state-changing transactions, wallet sessions, and the role
// checks used for pre-submit advisories.
type LedgerGateway interface {
	LedgerReader
	Connect(ctx context.Context) (ledger.AccountHandle, error)
	CreateProduct(ctx context.Context, from models.Address, in ledger.CreateProductInput) (models.TxRef, error)
	CreateBatch(ctx context.Context, from models.Address, productIDs []uint64, location string) (models.TxRef, error)
	UpdateBatchLocation(ctx context.Context, from models.Address, batchID uint64, location string) (models.TxRef, error)
	PurchaseBatch(ctx context.Context, from models.Address, batchID, totalMinorUnits uint64) (models.TxRef, error)
	ProductCount(ctx context.Context) (uint64, error)
	BatchCount(ctx context.Context) (uint64, error)
	HasRole(ctx context.Context, role ledger.Role, account models.Address) (bool, error)
}

// HistorySource exposes the in-memory event history kept by the chain
// synchronizer. Filters narrow the returned slice; events come back
// newest first.
type HistorySource interface {
	History(filters ...func(models.DomainEvent) bool) []models.DomainEvent
}

// CropStore is the crops projection surface services read and write.
type CropStore interface {
	Upsert(ctx context.Context, crop *vmodels.Crop) error
	GetByID(ctx context.Context, productID int64) (*vmodels.Crop, error)
	UpdateHolder(ctx context.Context, productID int64, holder string) error
	UpdateStatus(ctx context.Context, productID int64, statusCode int16) error
}

// BatchStore is the batches projection surface.
type BatchStore interface {
	Upsert(ctx context.Context, batch *vmodels.BatchRecord) error
	GetByID(ctx context.Context, batchID int64) (*vmodels.BatchRecord, error)
	UpdateLocation(ctx context.Context, batchID int64, location string) error
	UpdateStatus(ctx context.Context, batchID int64, statusCode int16) error
	RecordPurchase(ctx context.Context, batchID int64, buyer string, paidMinorUnits int64) error
}

// AnchorStore persists and retrieves the off-chain anchoring rows public
// batch verification resolves against.
type AnchorStore interface {
	CreateWithAudit(ctx context.Context, anchor *vmodels.BatchAnchor, ident *vmodels.IssuedIdentifier) error
	Get(ctx context.Context, batchID int64, nonce string) (*vmodels.BatchAnchor, error)
	MarkVerified(ctx context.Context, batchID int64, txHash string) error
}

// IdentifierStore persists the issuance audit trail.
type IdentifierStore interface {
	Create(ctx context.Context, ident *vmodels.IssuedIdentifier) error
	GetByNonce(ctx context.Context, nonce string) (*vmodels.IssuedIdentifier, error)
	CountBySubject(ctx context.Context, kind string, subjectID int64) (map[string]int64, error)
}

// NonceClaimer reserves a freshly minted nonce so two concurrent mints
// can never issue the same code. Backed by redis SET NX in production.
type NonceClaimer interface {
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
}

// PricePredictor scores a crop for the optional market-price advisory on
// product verifications.
type PricePredictor interface {
	Enabled() bool
	Predict(ctx context.Context, input clients.PredictionInput) (*clients.Prediction, error)
}

// Metrics is the instrumentation surface services emit to.
type Metrics interface {
	VerificationCompleted(source string, valid bool)
	IdentifierMinted(kind, assurance string)
	ObserveSubmit(operation string, start time.Time)
}

// noopMetrics satisfies Metrics for tests and for wiring without a
// collector.
type noopMetrics struct{}

func (noopMetrics) VerificationCompleted(string, bool) {}
func (noopMetrics) IdentifierMinted(string, string)    {}
func (noopMetrics) ObserveSubmit(string, time.Time)    {}
