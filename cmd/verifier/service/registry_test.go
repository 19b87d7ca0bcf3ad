package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/lifecycle"
	"github.com/farmtrace/provenance/common/models"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
)

type registryFixture struct {
	ledger  *fakeLedger
	crops   *fakeCrops
	batches *fakeBatches
	svc     *RegistryService
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		ledger:  newFakeLedger(),
		crops:   newFakeCrops(),
		batches: newFakeBatches(),
	}
	f.svc = NewRegistryService(f.ledger, f.crops, f.batches, nil, &testLogger{t: t})
	return f
}

func TestCreateProductSubmitsAndProjects(t *testing.T) {
	f := newRegistryFixture(t)
	cropType := "mango"

	crop, txRef, err := f.svc.CreateProduct(context.Background(), &vmodels.CreateProductRequest{
		Name:            "alphonso mango",
		Description:     "GI tagged, Devgad",
		ContentHash:     "Qm123",
		PriceMinorUnits: 129900,
		CropType:        &cropType,
	})

	require.NoError(t, err)
	assert.Equal(t, models.TxRef("0xtx"), txRef)
	assert.Equal(t, int64(0), crop.ProductID, "first product takes id zero")
	assert.Equal(t, "0xfarm", crop.Originator, "empty From resolves to the first provider account")
	assert.Equal(t, "0xfarm", crop.CurrentHolder)
	assert.Equal(t, int16(lifecycle.StatusHarvested), crop.StatusCode)
	assert.False(t, crop.CreatedAt.IsZero())

	stored, ok := f.crops.rows[0]
	require.True(t, ok, "projection row must be written")
	assert.Equal(t, "alphonso mango", stored.Name)
	require.NotNil(t, stored.CropType)
	assert.Equal(t, "mango", *stored.CropType)
}

func TestCreateProductAttributesNewestID(t *testing.T) {
	f := newRegistryFixture(t)
	f.ledger.products[0] = models.Product{ID: 0}
	f.ledger.products[1] = models.Product{ID: 1}

	crop, _, err := f.svc.CreateProduct(context.Background(), &vmodels.CreateProductRequest{
		Name: "kesar mango", PriceMinorUnits: 99900,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), crop.ProductID)
}

func TestCreateProductNoAccounts(t *testing.T) {
	f := newRegistryFixture(t)
	f.ledger.accounts = nil

	_, _, err := f.svc.CreateProduct(context.Background(), &vmodels.CreateProductRequest{Name: "x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNoAccounts)
}

func TestCreateProductWalletRejected(t *testing.T) {
	f := newRegistryFixture(t)
	f.ledger.connectErr = ledger.ErrUserRejected

	_, _, err := f.svc.CreateProduct(context.Background(), &vmodels.CreateProductRequest{Name: "x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUserRejected)
	assert.Empty(t, f.crops.rows)
}

func TestCreateProductSubmitFailure(t *testing.T) {
	f := newRegistryFixture(t)
	f.ledger.submitErr = &ledger.RevertError{Reason: "caller is not a farmer"}

	_, _, err := f.svc.CreateProduct(context.Background(), &vmodels.CreateProductRequest{Name: "x"})

	require.Error(t, err)
	var revert *ledger.RevertError
	assert.ErrorAs(t, err, &revert)
	assert.Empty(t, f.crops.rows, "no projection without a committed transaction")
}

func TestCreateBatchProjectsRecord(t *testing.T) {
	f := newRegistryFixture(t)

	rec, err := f.svc.CreateBatch(context.Background(), &vmodels.CreateBatchRequest{
		ProductIDs: []uint64{41, 42},
		Location:   "Ratnagiri",
		From:       "0xdist",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.BatchID)
	assert.Equal(t, "0xdist", rec.Handler)
	assert.Equal(t, []int64{41, 42}, rec.ProductIDs)
	assert.Equal(t, "0xtx", rec.TxRef, "the creating tx anchors later issuance")
	assert.Equal(t, int16(lifecycle.StatusPacked), rec.StatusCode)
	assert.Contains(t, f.batches.rows, int64(0))
}

func TestCreateBatchProjectionFailureDoesNotFailCall(t *testing.T) {
	f := newRegistryFixture(t)
	f.batches.upsertErr = errors.New("pool exhausted")

	rec, err := f.svc.CreateBatch(context.Background(), &vmodels.CreateBatchRequest{
		ProductIDs: []uint64{1},
		Location:   "Pune",
	})

	require.NoError(t, err, "the ledger committed, the projection heals from events")
	assert.NotNil(t, rec)
}

func TestUpdateBatchLocation(t *testing.T) {
	f := newRegistryFixture(t)

	txRef, err := f.svc.UpdateBatchLocation(context.Background(), 3, &vmodels.UpdateLocationRequest{
		Location: "Mumbai APMC",
		From:     "0xdist",
	})

	require.NoError(t, err)
	assert.Equal(t, models.TxRef("0xtx"), txRef)
	require.Len(t, f.ledger.locations, 1)
	assert.Equal(t, locationCall{batchID: 3, location: "Mumbai APMC"}, f.ledger.locations[0])
	assert.Equal(t, "Mumbai APMC", f.batches.locations[3])
}

func TestPurchaseBatchSumsMemberPrices(t *testing.T) {
	f := newRegistryFixture(t)
	f.ledger.products[41] = models.Product{ID: 41, PriceMinorUnits: 10000}
	f.ledger.products[42] = models.Product{ID: 42, PriceMinorUnits: 25000}
	f.ledger.batches[3] = models.Batch{ID: 3, ProductIDs: []uint64{41, 42}}

	txRef, err := f.svc.PurchaseBatch(context.Background(), 3, &vmodels.PurchaseRequest{From: "0xretail"})

	require.NoError(t, err)
	assert.Equal(t, models.TxRef("0xtx"), txRef)
	require.Len(t, f.ledger.purchases, 1)
	assert.Equal(t, purchaseCall{from: "0xretail", batchID: 3, total: 35000}, f.ledger.purchases[0])
	assert.Equal(t, purchaseRow{buyer: "0xretail", paid: 35000}, f.batches.purchases[3])
}

func TestPurchaseBatchUnknownBatch(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.svc.PurchaseBatch(context.Background(), 99, &vmodels.PurchaseRequest{From: "0xretail"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Empty(t, f.ledger.purchases)
}

func TestGetProductReadThrough(t *testing.T) {
	f := newRegistryFixture(t)
	f.ledger.products[7] = models.Product{ID: 7, Name: "kesar mango"}

	product, err := f.svc.GetProduct(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, "kesar mango", product.Name)

	_, err = f.svc.GetProduct(context.Background(), 8)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
