package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/farmtrace/provenance/common/clients"
	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/models"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[INFO] %s %v", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[ERROR] %s %v", msg, keysAndValues)
}

func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[WARN] %s %v", msg, keysAndValues)
}

func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[DEBUG] %s %v", msg, keysAndValues)
}

// fakeLedger backs both the reader and gateway interfaces with maps and
// counts every read so tests can assert the ledger was never consulted.
type fakeLedger struct {
	mu sync.Mutex

	products map[uint64]models.Product
	custody  map[uint64][]models.CustodyEntry
	batches  map[uint64]models.Batch
	accounts []models.Address
	lacks    map[ledger.Role]bool

	readErr    error
	submitErr  error
	connectErr error
	nextTx     models.TxRef

	reads     int
	purchases []purchaseCall
	locations []locationCall
}

type purchaseCall struct {
	from    models.Address
	batchID uint64
	total   uint64
}

type locationCall struct {
	batchID  uint64
	location string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		products: make(map[uint64]models.Product),
		custody:  make(map[uint64][]models.CustodyEntry),
		batches:  make(map[uint64]models.Batch),
		accounts: []models.Address{"0xfarm"},
		nextTx:   "0xtx",
	}
}

func (f *fakeLedger) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeLedger) ReadProduct(ctx context.Context, id uint64) (models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return models.Product{}, f.readErr
	}
	product, ok := f.products[id]
	if !ok {
		return models.Product{}, ledger.ErrNotFound
	}
	return product, nil
}

func (f *fakeLedger) ReadBatch(ctx context.Context, id uint64) (models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return models.Batch{}, f.readErr
	}
	batch, ok := f.batches[id]
	if !ok {
		return models.Batch{}, ledger.ErrNotFound
	}
	return batch, nil
}

func (f *fakeLedger) ReadProductWithHistory(ctx context.Context, id uint64) (models.Product, []models.CustodyEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return models.Product{}, nil, f.readErr
	}
	product, ok := f.products[id]
	if !ok {
		return models.Product{}, nil, ledger.ErrNotFound
	}
	chain := make([]models.CustodyEntry, len(f.custody[id]))
	copy(chain, f.custody[id])
	return product, chain, nil
}

func (f *fakeLedger) CreateProduct(ctx context.Context, from models.Address, in ledger.CreateProductInput) (models.TxRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	id := uint64(len(f.products))
	f.products[id] = models.Product{
		ID:              id,
		Name:            in.Name,
		Description:     in.Description,
		ContentHash:     in.ContentHash,
		Originator:      from,
		CurrentHolder:   from,
		PriceMinorUnits: in.PriceMinorUnits,
	}
	return f.nextTx, nil
}

func (f *fakeLedger) CreateBatch(ctx context.Context, from models.Address, productIDs []uint64, location string) (models.TxRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	id := uint64(len(f.batches))
	f.batches[id] = models.Batch{
		ID:         id,
		ProductIDs: productIDs,
		Handler:    from,
		Location:   location,
	}
	return f.nextTx, nil
}

func (f *fakeLedger) UpdateBatchLocation(ctx context.Context, from models.Address, batchID uint64, location string) (models.TxRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.locations = append(f.locations, locationCall{batchID: batchID, location: location})
	return f.nextTx, nil
}

func (f *fakeLedger) PurchaseBatch(ctx context.Context, from models.Address, batchID, totalMinorUnits uint64) (models.TxRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.purchases = append(f.purchases, purchaseCall{from: from, batchID: batchID, total: totalMinorUnits})
	return f.nextTx, nil
}

func (f *fakeLedger) ProductCount(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.products)), nil
}

func (f *fakeLedger) BatchCount(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.batches)), nil
}

func (f *fakeLedger) HasRole(ctx context.Context, role ledger.Role, account models.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.lacks[role], nil
}

func (f *fakeLedger) Connect(ctx context.Context) (ledger.AccountHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return ledger.AccountHandle{}, f.connectErr
	}
	if len(f.accounts) == 0 {
		return ledger.AccountHandle{}, ledger.ErrNoAccounts
	}
	return ledger.AccountHandle{Active: f.accounts[0], All: f.accounts}, nil
}

// fakeHistory serves a canned event slice, newest first, honoring filters.
type fakeHistory struct {
	events []models.DomainEvent
}

func (f *fakeHistory) History(filters ...func(models.DomainEvent) bool) []models.DomainEvent {
	var out []models.DomainEvent
outer:
	for _, event := range f.events {
		for _, keep := range filters {
			if !keep(event) {
				continue outer
			}
		}
		out = append(out, event)
	}
	return out
}

type fakeCrops struct {
	rows      map[int64]*vmodels.Crop
	upsertErr error
	getErr    error
	holders   map[int64]string
	statuses  map[int64]int16
}

func newFakeCrops() *fakeCrops {
	return &fakeCrops{
		rows:     make(map[int64]*vmodels.Crop),
		holders:  make(map[int64]string),
		statuses: make(map[int64]int16),
	}
}

func (f *fakeCrops) Upsert(ctx context.Context, crop *vmodels.Crop) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[crop.ProductID] = crop
	return nil
}

func (f *fakeCrops) GetByID(ctx context.Context, productID int64) (*vmodels.Crop, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	crop, ok := f.rows[productID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return crop, nil
}

func (f *fakeCrops) UpdateHolder(ctx context.Context, productID int64, holder string) error {
	f.holders[productID] = holder
	return nil
}

func (f *fakeCrops) UpdateStatus(ctx context.Context, productID int64, statusCode int16) error {
	f.statuses[productID] = statusCode
	return nil
}

type fakeBatches struct {
	rows      map[int64]*vmodels.BatchRecord
	upsertErr error
	getErr    error
	locations map[int64]string
	statuses  map[int64]int16
	purchases map[int64]purchaseRow
}

type purchaseRow struct {
	buyer string
	paid  int64
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{
		rows:      make(map[int64]*vmodels.BatchRecord),
		locations: make(map[int64]string),
		statuses:  make(map[int64]int16),
		purchases: make(map[int64]purchaseRow),
	}
}

func (f *fakeBatches) Upsert(ctx context.Context, rec *vmodels.BatchRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[rec.BatchID] = rec
	return nil
}

func (f *fakeBatches) GetByID(ctx context.Context, batchID int64) (*vmodels.BatchRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.rows[batchID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return rec, nil
}

func (f *fakeBatches) UpdateLocation(ctx context.Context, batchID int64, location string) error {
	f.locations[batchID] = location
	return nil
}

func (f *fakeBatches) UpdateStatus(ctx context.Context, batchID int64, statusCode int16) error {
	f.statuses[batchID] = statusCode
	return nil
}

func (f *fakeBatches) RecordPurchase(ctx context.Context, batchID int64, buyer string, paidMinorUnits int64) error {
	f.purchases[batchID] = purchaseRow{buyer: buyer, paid: paidMinorUnits}
	return nil
}

type anchorKey struct {
	batchID int64
	nonce   string
}

type fakeAnchors struct {
	rows      map[anchorKey]*vmodels.BatchAnchor
	audits    []*vmodels.IssuedIdentifier
	createErr error
	getErr    error
	verified  []string
}

func newFakeAnchors() *fakeAnchors {
	return &fakeAnchors{rows: make(map[anchorKey]*vmodels.BatchAnchor)}
}

func (f *fakeAnchors) CreateWithAudit(ctx context.Context, anchor *vmodels.BatchAnchor, ident *vmodels.IssuedIdentifier) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rows[anchorKey{batchID: anchor.BatchID, nonce: anchor.Nonce}] = anchor
	f.audits = append(f.audits, ident)
	return nil
}

func (f *fakeAnchors) Get(ctx context.Context, batchID int64, nonce string) (*vmodels.BatchAnchor, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	anchor, ok := f.rows[anchorKey{batchID: batchID, nonce: nonce}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return anchor, nil
}

func (f *fakeAnchors) MarkVerified(ctx context.Context, batchID int64, txHash string) error {
	f.verified = append(f.verified, txHash)
	for _, anchor := range f.rows {
		if anchor.BatchID == batchID && anchor.TxHash == txHash {
			anchor.Verified = true
		}
	}
	return nil
}

type fakeIdents struct {
	rows   map[string]*vmodels.IssuedIdentifier
	counts map[string]int64
	err    error
}

func newFakeIdents() *fakeIdents {
	return &fakeIdents{rows: make(map[string]*vmodels.IssuedIdentifier)}
}

func (f *fakeIdents) Create(ctx context.Context, ident *vmodels.IssuedIdentifier) error {
	if f.err != nil {
		return f.err
	}
	f.rows[ident.Nonce] = ident
	return nil
}

func (f *fakeIdents) GetByNonce(ctx context.Context, nonce string) (*vmodels.IssuedIdentifier, error) {
	ident, ok := f.rows[nonce]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ident, nil
}

func (f *fakeIdents) CountBySubject(ctx context.Context, kind string, subjectID int64) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

type fakeClaims struct {
	claimed map[string]string
	taken   bool
	err     error
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{claimed: make(map[string]string)}
}

func (f *fakeClaims) SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.taken {
		return false, nil
	}
	if _, exists := f.claimed[key]; exists {
		return false, nil
	}
	f.claimed[key] = value
	return true, nil
}

type fakePricing struct {
	enabled    bool
	prediction *clients.Prediction
	err        error
	inputs     []clients.PredictionInput
}

func (f *fakePricing) Enabled() bool {
	return f.enabled
}

func (f *fakePricing) Predict(ctx context.Context, input clients.PredictionInput) (*clients.Prediction, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.prediction, nil
}
