package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmtrace/provenance/common/lifecycle"
	"github.com/farmtrace/provenance/common/models"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
)

type recorderFixture struct {
	crops    *fakeCrops
	batches  *fakeBatches
	anchors  *fakeAnchors
	recorder *AnchorRecorder
}

func newRecorderFixture(t *testing.T) *recorderFixture {
	t.Helper()
	f := &recorderFixture{
		crops:   newFakeCrops(),
		batches: newFakeBatches(),
		anchors: newFakeAnchors(),
	}
	f.recorder = &AnchorRecorder{
		crops:    f.crops,
		batches:  f.batches,
		anchors:  f.anchors,
		logger:   &testLogger{t: t},
		stream:   "provenance:events",
		consumer: "recorder_test",
	}
	return f
}

func eventMessage(t *testing.T, event models.DomainEvent) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return redis.XMessage{ID: "1-0", Values: map[string]interface{}{"event": string(data)}}
}

func TestRecorderMaterializesProductCreated(t *testing.T) {
	f := newRecorderFixture(t)
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := f.recorder.handleMessage(context.Background(), eventMessage(t, models.DomainEvent{
		Kind:           models.EventProductCreated,
		SequenceKey:    models.SequenceKey{BlockNumber: 10},
		TransactionRef: "0xmint",
		OccurredAt:     occurred,
		ProductCreated: &models.ProductCreatedPayload{
			ProductID: 7, Originator: "0xfarm", Name: "alphonso mango", PriceMinorUnits: 129900,
		},
	}))

	require.NoError(t, err)
	crop, ok := f.crops.rows[7]
	require.True(t, ok)
	assert.Equal(t, "alphonso mango", crop.Name)
	assert.Equal(t, "0xfarm", crop.Originator)
	assert.Equal(t, "0xfarm", crop.CurrentHolder, "a fresh product starts in its originator's custody")
	assert.Equal(t, int64(129900), crop.PriceMinorUnits)
	assert.Equal(t, int16(lifecycle.StatusHarvested), crop.StatusCode)
	assert.Equal(t, occurred, crop.CreatedAt)
}

func TestRecorderMovesCustody(t *testing.T) {
	f := newRecorderFixture(t)

	err := f.recorder.handleMessage(context.Background(), eventMessage(t, models.DomainEvent{
		Kind:           models.EventOwnershipTransferred,
		SequenceKey:    models.SequenceKey{BlockNumber: 11},
		TransactionRef: "0xmove",
		OwnershipTransferred: &models.OwnershipTransferredPayload{
			ProductID: 7, From: "0xfarm", To: "0xdist",
		},
	}))

	require.NoError(t, err)
	assert.Equal(t, "0xdist", f.crops.holders[7])
}

func TestRecorderUpdatesStatusBySubject(t *testing.T) {
	f := newRecorderFixture(t)

	err := f.recorder.handleMessage(context.Background(), eventMessage(t, models.DomainEvent{
		Kind:           models.EventStatusUpdated,
		SequenceKey:    models.SequenceKey{BlockNumber: 12},
		TransactionRef: "0xs1",
		StatusUpdated: &models.StatusUpdatedPayload{
			Subject: models.KindProduct, SubjectID: 7, StatusCode: lifecycle.StatusForSale,
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, int16(lifecycle.StatusForSale), f.crops.statuses[7])

	err = f.recorder.handleMessage(context.Background(), eventMessage(t, models.DomainEvent{
		Kind:           models.EventStatusUpdated,
		SequenceKey:    models.SequenceKey{BlockNumber: 13},
		TransactionRef: "0xs2",
		StatusUpdated: &models.StatusUpdatedPayload{
			Subject: models.KindBatch, SubjectID: 3, StatusCode: lifecycle.StatusShipped,
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, int16(lifecycle.StatusShipped), f.batches.statuses[3])
}

func TestRecorderBatchCreatedFlipsWaitingAnchor(t *testing.T) {
	f := newRecorderFixture(t)
	f.anchors.rows[anchorKey{batchID: 3, nonce: "n-1"}] = &vmodels.BatchAnchor{
		BatchID: 3, Nonce: "n-1", TxHash: "0xbatchtx",
	}

	err := f.recorder.handleMessage(context.Background(), eventMessage(t, models.DomainEvent{
		Kind:           models.EventBatchCreated,
		SequenceKey:    models.SequenceKey{BlockNumber: 20},
		TransactionRef: "0xbatchtx",
		BatchCreated: &models.BatchCreatedPayload{
			BatchID: 3, Handler: "0xdist", ProductIDs: []uint64{41, 42}, Location: "Ratnagiri",
		},
	}))

	require.NoError(t, err)
	rec, ok := f.batches.rows[3]
	require.True(t, ok)
	assert.Equal(t, []int64{41, 42}, rec.ProductIDs)
	assert.Equal(t, "0xbatchtx", rec.TxRef)
	assert.Equal(t, int16(lifecycle.StatusPacked), rec.StatusCode)
	assert.True(t, f.anchors.rows[anchorKey{batchID: 3, nonce: "n-1"}].Verified)
}

func TestRecorderBatchLocationUpdated(t *testing.T) {
	f := newRecorderFixture(t)

	err := f.recorder.handleMessage(context.Background(), eventMessage(t, models.DomainEvent{
		Kind:           models.EventBatchLocationUpdated,
		SequenceKey:    models.SequenceKey{BlockNumber: 21},
		TransactionRef: "0xloc",
		BatchLocationUpdated: &models.BatchLocationUpdatedPayload{
			BatchID: 3, Location: "Mumbai APMC",
		},
	}))

	require.NoError(t, err)
	assert.Equal(t, "Mumbai APMC", f.batches.locations[3])
}

func TestRecorderBatchPurchased(t *testing.T) {
	f := newRecorderFixture(t)

	err := f.recorder.handleMessage(context.Background(), eventMessage(t, models.DomainEvent{
		Kind:           models.EventBatchPurchased,
		SequenceKey:    models.SequenceKey{BlockNumber: 22},
		TransactionRef: "0xbuy",
		BatchPurchased: &models.BatchPurchasedPayload{
			BatchID: 3, Buyer: "0xretail", PaidMinorUnits: 35000,
		},
	}))

	require.NoError(t, err)
	assert.Equal(t, purchaseRow{buyer: "0xretail", paid: 35000}, f.batches.purchases[3])
}

func TestRecorderRejectsEntryWithoutEventField(t *testing.T) {
	f := newRecorderFixture(t)

	err := f.recorder.handleMessage(context.Background(), redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"kind": "ProductCreated"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event field")
}

func TestRecorderRejectsMalformedEvent(t *testing.T) {
	f := newRecorderFixture(t)

	err := f.recorder.handleMessage(context.Background(), redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"event": "{not json"},
	})
	require.Error(t, err)

	// A kind whose payload slot is empty violates the union shape.
	err = f.recorder.handleMessage(context.Background(), eventMessage(t, models.DomainEvent{
		Kind:           models.EventProductCreated,
		SequenceKey:    models.SequenceKey{BlockNumber: 30},
		TransactionRef: "0xbad",
	}))
	require.Error(t, err)
	assert.Empty(t, f.crops.rows)
}
