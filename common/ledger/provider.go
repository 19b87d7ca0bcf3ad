package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/farmtrace/provenance/common/models"
)

// Role names a contract-side access role. Roles are advisory at this
// layer; the ledger itself enforces them on submission.
type Role string

const (
	RoleFarmer      Role = "FARMER_ROLE"
	RoleDistributor Role = "DISTRIBUTOR_ROLE"
	RoleRetailer    Role = "RETAILER_ROLE"
)

// AccountHandle is the session opened by Connect. Active is the account
// submissions are sent from.
type AccountHandle struct {
	Active models.Address
	All    []models.Address
}

// RawLog is one undecoded log entry pushed by the contract watcher.
// Fields carries the ABI-decoded values keyed by name; normalization
// validates the shape before anything downstream sees the event.
type RawLog struct {
	Kind        models.EventKind
	BlockNumber uint64
	LogIndex    uint32
	TxHash      models.TxRef
	Fields      map[string]any
}

// Provider is the externally supplied wallet/session provider.
type Provider interface {
	// RequestAccounts asks the holder for account access. Implementations
	// return ErrUserRejected when the holder declines.
	RequestAccounts(ctx context.Context) ([]models.Address, error)

	// ListAccounts returns already-authorized accounts without prompting.
	ListAccounts(ctx context.Context) ([]models.Address, error)

	// BlockTimestamp resolves a block number to its timestamp.
	BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// Contract is the typed binding over the deployed traceability contract.
// Submit-style calls return once the transaction is broadcast; inclusion
// is awaited separately via WaitIncluded. Reads return ErrNotFound for ids
// that have never been created.
type Contract interface {
	CreateProduct(ctx context.Context, from models.Address, name, description, contentHash string, priceNative *big.Int) (models.TxRef, error)
	CreateBatch(ctx context.Context, from models.Address, productIDs []uint64, location string) (models.TxRef, error)
	UpdateBatchLocation(ctx context.Context, from models.Address, batchID uint64, location string) (models.TxRef, error)
	PurchaseBatch(ctx context.Context, from models.Address, batchID uint64, value *big.Int) (models.TxRef, error)

	// WaitIncluded blocks until the transaction is included or ctx ends.
	// A contract-level rejection surfaces as *RevertError.
	WaitIncluded(ctx context.Context, ref models.TxRef) error

	Products(ctx context.Context, id uint64) (models.Product, error)
	Batches(ctx context.Context, id uint64) (models.Batch, error)
	GetProductWithHistory(ctx context.Context, id uint64) (models.Product, []models.Address, error)
	ProductCount(ctx context.Context) (uint64, error)
	BatchCount(ctx context.Context) (uint64, error)
	HasRole(ctx context.Context, role Role, account models.Address) (bool, error)

	// WatchEvents streams raw logs for one event kind. The returned func
	// unsubscribes; after it returns the channel is closed.
	WatchEvents(ctx context.Context, kind models.EventKind) (<-chan RawLog, func(), error)
}

// BindFunc creates the contract binding on first use. Supplied by the
// composition root so tests and deployments choose their own transport.
type BindFunc func(ctx context.Context) (Contract, error)

var nativeUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// NativeValue converts display-currency minor units to the ledger's native
// unit using the fixed configured rate (minor units per whole token).
// value = minorUnits * 1e18 / minorPerToken, floored.
func NativeValue(minorUnits, minorPerToken uint64) *big.Int {
	if minorPerToken == 0 {
		return new(big.Int)
	}
	v := new(big.Int).SetUint64(minorUnits)
	v.Mul(v, nativeUnit)
	return v.Div(v, new(big.Int).SetUint64(minorPerToken))
}
