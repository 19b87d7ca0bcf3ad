// Package memledger is an in-process ledger for local development and
// integration tests. It applies the same rules the deployed traceability
// contract enforces (roles, existence checks, lifecycle stages) and emits
// the same event logs, sealing one block per transaction.
package memledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/lifecycle"
	"github.com/farmtrace/provenance/common/models"
)

// Deterministic dev accounts. The first is the session account and holds
// every role; the rest hold one role each for exercising role checks.
var devAccounts = []models.Address{
	"0x0000000000000000000000000000000000000a00",
	"0x0000000000000000000000000000000000000a01",
	"0x0000000000000000000000000000000000000a02",
	"0x0000000000000000000000000000000000000a03",
}

var nativeUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

const watcherBuffer = 256

type productState struct {
	name            string
	description     string
	contentHash     string
	originator      models.Address
	holder          models.Address
	holders         []models.Address
	priceMinorUnits uint64
	createdAt       time.Time
	status          uint8
}

type batchState struct {
	productIDs []uint64
	handler    models.Address
	location   string
	createdAt  time.Time
	status     uint8
	purchased  bool
}

type watcher struct {
	id uint64
	ch chan ledger.RawLog
}

// Ledger implements both ledger.Provider and ledger.Contract in memory.
// State mutates synchronously at submission, so WaitIncluded returns
// immediately for any ref this instance issued.
type Ledger struct {
	log           ledger.Logger
	minorPerToken uint64

	mu       sync.Mutex
	accounts []models.Address
	roles    map[ledger.Role]map[models.Address]bool
	products []productState
	batches  []batchState

	// block n's timestamp sits at blocks[n-1]; one block per transaction
	blocks   []time.Time
	included map[models.TxRef]struct{}

	watchers  map[models.EventKind][]watcher
	nextWatch uint64
}

var (
	_ ledger.Provider = (*Ledger)(nil)
	_ ledger.Contract = (*Ledger)(nil)
)

// New creates a dev ledger seeded with the deterministic accounts.
// minorPerToken is the same conversion rate the client uses, so priced
// values round-trip.
func New(minorPerToken uint64, log ledger.Logger) *Ledger {
	l := &Ledger{
		log:           log,
		minorPerToken: minorPerToken,
		accounts:      append([]models.Address(nil), devAccounts...),
		roles: map[ledger.Role]map[models.Address]bool{
			ledger.RoleFarmer:      {devAccounts[0]: true, devAccounts[1]: true},
			ledger.RoleDistributor: {devAccounts[0]: true, devAccounts[2]: true},
			ledger.RoleRetailer:    {devAccounts[0]: true, devAccounts[3]: true},
		},
		included: make(map[models.TxRef]struct{}),
		watchers: make(map[models.EventKind][]watcher),
	}
	log.Info("dev ledger ready", "accounts", len(l.accounts))
	return l
}

// --- ledger.Provider ---

// RequestAccounts grants access to every dev account without prompting.
func (l *Ledger) RequestAccounts(ctx context.Context) ([]models.Address, error) {
	return l.ListAccounts(ctx)
}

// ListAccounts returns the dev accounts, session account first.
func (l *Ledger) ListAccounts(_ context.Context) ([]models.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Address(nil), l.accounts...), nil
}

// BlockTimestamp resolves a sealed block's timestamp.
func (l *Ledger) BlockTimestamp(_ context.Context, blockNumber uint64) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if blockNumber == 0 || blockNumber > uint64(len(l.blocks)) {
		return time.Time{}, fmt.Errorf("unknown block %d", blockNumber)
	}
	return l.blocks[blockNumber-1], nil
}

// --- ledger.Contract submissions ---

// CreateProduct registers a product owned by its originator.
func (l *Ledger) CreateProduct(_ context.Context, from models.Address, name, description, contentHash string, priceNative *big.Int) (models.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRole(ledger.RoleFarmer, from); err != nil {
		return "", err
	}
	if name == "" {
		return "", &ledger.RevertError{Reason: "empty product name"}
	}

	block, ref := l.sealBlock()
	id := uint64(len(l.products))
	l.products = append(l.products, productState{
		name:            name,
		description:     description,
		contentHash:     contentHash,
		originator:      from,
		holder:          from,
		holders:         []models.Address{from},
		priceMinorUnits: l.minorUnits(priceNative),
		createdAt:       l.blocks[block-1],
		status:          lifecycle.StatusHarvested,
	})

	l.emit(block, 0, ref, models.EventProductCreated, map[string]any{
		"productId":  id,
		"originator": string(from),
		"name":       name,
		"price":      l.products[id].priceMinorUnits,
	})

	l.log.Debug("dev ledger: product created", "product_id", id, "block", block)
	return ref, nil
}

// CreateBatch groups existing products under a handler. Member products
// move into the handler's custody and advance to Packed.
func (l *Ledger) CreateBatch(_ context.Context, from models.Address, productIDs []uint64, location string) (models.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRole(ledger.RoleDistributor, from); err != nil {
		return "", err
	}
	if len(productIDs) == 0 {
		return "", &ledger.RevertError{Reason: "empty batch"}
	}
	for _, id := range productIDs {
		if id >= uint64(len(l.products)) {
			return "", &ledger.RevertError{Reason: fmt.Sprintf("unknown product %d", id)}
		}
	}

	block, ref := l.sealBlock()
	batchID := uint64(len(l.batches))
	l.batches = append(l.batches, batchState{
		productIDs: append([]uint64(nil), productIDs...),
		handler:    from,
		location:   location,
		createdAt:  l.blocks[block-1],
		status:     lifecycle.StatusPacked,
	})

	idx := l.emit(block, 0, ref, models.EventBatchCreated, map[string]any{
		"batchId":    batchID,
		"handler":    string(from),
		"productIds": append([]uint64(nil), productIDs...),
		"location":   location,
	})

	for _, id := range productIDs {
		p := &l.products[id]
		prev := p.holder
		p.status = lifecycle.StatusPacked
		idx = l.emit(block, idx, ref, models.EventStatusUpdated, map[string]any{
			"subject":    string(models.KindProduct),
			"subjectId":  id,
			"statusCode": uint64(lifecycle.StatusPacked),
		})
		if prev != from {
			p.holder = from
			p.holders = append(p.holders, from)
			idx = l.emit(block, idx, ref, models.EventOwnershipTransferred, map[string]any{
				"productId": id,
				"from":      string(prev),
				"to":        string(from),
			})
		}
	}

	l.log.Debug("dev ledger: batch created", "batch_id", batchID, "products", len(productIDs), "block", block)
	return ref, nil
}

// UpdateBatchLocation records a custody checkpoint and marks the batch
// shipped.
func (l *Ledger) UpdateBatchLocation(_ context.Context, from models.Address, batchID uint64, location string) (models.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRole(ledger.RoleDistributor, from); err != nil {
		return "", err
	}
	if batchID >= uint64(len(l.batches)) {
		return "", &ledger.RevertError{Reason: fmt.Sprintf("unknown batch %d", batchID)}
	}
	if location == "" {
		return "", &ledger.RevertError{Reason: "empty location"}
	}
	b := &l.batches[batchID]
	if b.purchased {
		return "", &ledger.RevertError{Reason: "batch already purchased"}
	}

	block, ref := l.sealBlock()
	b.location = location
	b.status = lifecycle.StatusShipped

	idx := l.emit(block, 0, ref, models.EventBatchLocationUpdated, map[string]any{
		"batchId":  batchID,
		"location": location,
	})
	l.emit(block, idx, ref, models.EventStatusUpdated, map[string]any{
		"subject":    string(models.KindBatch),
		"subjectId":  batchID,
		"statusCode": uint64(lifecycle.StatusShipped),
	})

	return ref, nil
}

// PurchaseBatch settles a whole batch. The paid value must cover the sum
// of member product prices; custody of every member moves to the buyer.
func (l *Ledger) PurchaseBatch(_ context.Context, from models.Address, batchID uint64, value *big.Int) (models.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireRole(ledger.RoleRetailer, from); err != nil {
		return "", err
	}
	if batchID >= uint64(len(l.batches)) {
		return "", &ledger.RevertError{Reason: fmt.Sprintf("unknown batch %d", batchID)}
	}
	b := &l.batches[batchID]
	if b.purchased {
		return "", &ledger.RevertError{Reason: "batch already purchased"}
	}

	var totalMinor uint64
	for _, id := range b.productIDs {
		totalMinor += l.products[id].priceMinorUnits
	}
	expected := ledger.NativeValue(totalMinor, l.minorPerToken)
	if value == nil || value.Cmp(expected) < 0 {
		return "", &ledger.RevertError{Reason: "insufficient payment"}
	}

	block, ref := l.sealBlock()
	b.purchased = true
	b.status = lifecycle.StatusPurchased

	idx := l.emit(block, 0, ref, models.EventBatchPurchased, map[string]any{
		"batchId": batchID,
		"buyer":   string(from),
		"paid":    totalMinor,
	})
	idx = l.emit(block, idx, ref, models.EventStatusUpdated, map[string]any{
		"subject":    string(models.KindBatch),
		"subjectId":  batchID,
		"statusCode": uint64(lifecycle.StatusPurchased),
	})

	for _, id := range b.productIDs {
		p := &l.products[id]
		prev := p.holder
		p.status = lifecycle.StatusPurchased
		idx = l.emit(block, idx, ref, models.EventStatusUpdated, map[string]any{
			"subject":    string(models.KindProduct),
			"subjectId":  id,
			"statusCode": uint64(lifecycle.StatusPurchased),
		})
		if prev != from {
			p.holder = from
			p.holders = append(p.holders, from)
			idx = l.emit(block, idx, ref, models.EventOwnershipTransferred, map[string]any{
				"productId": id,
				"from":      string(prev),
				"to":        string(from),
			})
		}
	}

	l.log.Debug("dev ledger: batch purchased", "batch_id", batchID, "paid_minor_units", totalMinor, "block", block)
	return ref, nil
}

// WaitIncluded returns immediately: state mutates at submission here.
func (l *Ledger) WaitIncluded(_ context.Context, ref models.TxRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.included[ref]; !ok {
		return fmt.Errorf("unknown transaction %s", ref)
	}
	return nil
}

// --- ledger.Contract reads ---

// Products returns current product state.
func (l *Ledger) Products(_ context.Context, id uint64) (models.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id >= uint64(len(l.products)) {
		return models.Product{}, ledger.ErrNotFound
	}
	return l.productAt(id), nil
}

// Batches returns current batch state.
func (l *Ledger) Batches(_ context.Context, id uint64) (models.Batch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id >= uint64(len(l.batches)) {
		return models.Batch{}, ledger.ErrNotFound
	}
	b := l.batches[id]
	return models.Batch{
		ID:         id,
		ProductIDs: append([]uint64(nil), b.productIDs...),
		Handler:    b.handler,
		CreatedAt:  b.createdAt,
		Location:   b.location,
		StatusCode: b.status,
	}, nil
}

// GetProductWithHistory returns a product with its ordered custody chain.
func (l *Ledger) GetProductWithHistory(_ context.Context, id uint64) (models.Product, []models.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id >= uint64(len(l.products)) {
		return models.Product{}, nil, ledger.ErrNotFound
	}
	holders := append([]models.Address(nil), l.products[id].holders...)
	return l.productAt(id), holders, nil
}

// ProductCount returns how many products were ever created.
func (l *Ledger) ProductCount(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.products)), nil
}

// BatchCount returns how many batches were ever created.
func (l *Ledger) BatchCount(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.batches)), nil
}

// HasRole reports role membership. Unknown roles are simply not granted.
func (l *Ledger) HasRole(_ context.Context, role ledger.Role, account models.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roles[role][account], nil
}

// WatchEvents streams logs of one kind. The returned func unsubscribes
// and closes the channel.
func (l *Ledger) WatchEvents(_ context.Context, kind models.EventKind) (<-chan ledger.RawLog, func(), error) {
	if !models.KnownKind(kind) {
		return nil, nil, fmt.Errorf("unknown event kind %q", kind)
	}

	l.mu.Lock()
	l.nextWatch++
	w := watcher{id: l.nextWatch, ch: make(chan ledger.RawLog, watcherBuffer)}
	l.watchers[kind] = append(l.watchers[kind], w)
	l.mu.Unlock()

	unsub := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		entries := l.watchers[kind]
		for i, e := range entries {
			if e.id == w.id {
				l.watchers[kind] = append(entries[:i:i], entries[i+1:]...)
				close(e.ch)
				return
			}
		}
	}
	return w.ch, unsub, nil
}

// --- internals, caller holds l.mu ---

// sealBlock appends a block for one transaction and returns its number
// and tx ref.
func (l *Ledger) sealBlock() (uint64, models.TxRef) {
	l.blocks = append(l.blocks, time.Now().UTC())
	block := uint64(len(l.blocks))

	sum := sha256.Sum256([]byte(fmt.Sprintf("memledger-tx-%d", block)))
	ref := models.TxRef("0x" + hex.EncodeToString(sum[:]))
	l.included[ref] = struct{}{}
	return block, ref
}

// emit pushes one log to every watcher of its kind and returns the next
// log index within the block. Slow watchers lose logs rather than stall
// the ledger; the synchronizer's dedup makes redelivery safe anyway.
func (l *Ledger) emit(block uint64, idx uint32, ref models.TxRef, kind models.EventKind, fields map[string]any) uint32 {
	raw := ledger.RawLog{
		Kind:        kind,
		BlockNumber: block,
		LogIndex:    idx,
		TxHash:      ref,
		Fields:      fields,
	}
	for _, w := range l.watchers[kind] {
		select {
		case w.ch <- raw:
		default:
			l.log.Warn("dev ledger: watcher buffer full, dropping log",
				"kind", kind,
				"block", block,
				"log_index", idx,
			)
		}
	}
	return idx + 1
}

func (l *Ledger) requireRole(role ledger.Role, account models.Address) error {
	if account == "" {
		return &ledger.RevertError{Reason: "missing sender"}
	}
	if !l.roles[role][account] {
		return &ledger.RevertError{Reason: fmt.Sprintf("account %s lacks %s", account, role)}
	}
	return nil
}

// minorUnits inverts the client's native-value conversion. Both
// directions floor, so a non-divisible price can round one unit down.
func (l *Ledger) minorUnits(native *big.Int) uint64 {
	if native == nil || native.Sign() <= 0 || l.minorPerToken == 0 {
		return 0
	}
	v := new(big.Int).Mul(native, new(big.Int).SetUint64(l.minorPerToken))
	v.Div(v, nativeUnit)
	if !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func (l *Ledger) productAt(id uint64) models.Product {
	p := l.products[id]
	return models.Product{
		ID:              id,
		Name:            p.name,
		Description:     p.description,
		ContentHash:     p.contentHash,
		Originator:      p.originator,
		CurrentHolder:   p.holder,
		PriceMinorUnits: p.priceMinorUnits,
		CreatedAt:       p.createdAt,
		StatusCode:      p.status,
	}
}
