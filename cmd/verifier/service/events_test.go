package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmtrace/provenance/common/models"
)

func recordedEvents() []models.DomainEvent {
	return []models.DomainEvent{
		{
			Kind:           models.EventBatchCreated,
			SequenceKey:    models.SequenceKey{BlockNumber: 30},
			TransactionRef: "0xc",
			BatchCreated: &models.BatchCreatedPayload{
				BatchID: 7, Handler: "0xdist", ProductIDs: []uint64{1}, Location: "Ratnagiri",
			},
		},
		{
			Kind:           models.EventOwnershipTransferred,
			SequenceKey:    models.SequenceKey{BlockNumber: 20},
			TransactionRef: "0xb",
			OwnershipTransferred: &models.OwnershipTransferredPayload{
				ProductID: 1, From: "0xfarm", To: "0xdist",
			},
		},
		{
			Kind:           models.EventProductCreated,
			SequenceKey:    models.SequenceKey{BlockNumber: 10},
			TransactionRef: "0xa",
			ProductCreated: &models.ProductCreatedPayload{
				ProductID: 1, Originator: "0xfarm", Name: "alphonso mango", PriceMinorUnits: 129900,
			},
		},
	}
}

func newEventFixture(t *testing.T) *EventService {
	t.Helper()
	svc, err := NewEventService(&fakeHistory{events: recordedEvents()}, &testLogger{t: t})
	require.NoError(t, err)
	return svc
}

func TestQueryReturnsNewestFirst(t *testing.T) {
	svc := newEventFixture(t)

	events, err := svc.Query("", 0, "")

	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.EventBatchCreated, events[0].Kind)
	assert.Equal(t, models.EventProductCreated, events[2].Kind)
}

func TestQueryNarrowsByKind(t *testing.T) {
	svc := newEventFixture(t)

	events, err := svc.Query("ProductCreated", 0, "")

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].ProductCreated.ProductID)
}

func TestQueryRejectsUnknownKind(t *testing.T) {
	svc := newEventFixture(t)

	_, err := svc.Query("Garbage", 0, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event kind")
}

func TestQueryTruncatesToLimit(t *testing.T) {
	svc := newEventFixture(t)

	events, err := svc.Query("", 2, "")

	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestQueryFilterOnPayloadFields(t *testing.T) {
	svc := newEventFixture(t)

	events, err := svc.Query("", 0, "event.batch_created.batch_id == 7.0")

	require.NoError(t, err, "filters referencing batch fields must not break on other kinds")
	require.Len(t, events, 1)
	assert.Equal(t, models.EventBatchCreated, events[0].Kind)
}

func TestQueryFilterOnKind(t *testing.T) {
	svc := newEventFixture(t)

	events, err := svc.Query("", 0, "event.kind == 'OwnershipTransferred'")

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "0xdist", string(events[0].OwnershipTransferred.To))
}

func TestQueryFilterNumericComparison(t *testing.T) {
	svc := newEventFixture(t)

	events, err := svc.Query("", 0, "event.product_created.price_minor_units > 100000.0")

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alphonso mango", events[0].ProductCreated.Name)
}

func TestQueryFilterComposesWithKindAndLimit(t *testing.T) {
	svc := newEventFixture(t)

	events, err := svc.Query("BatchCreated", 1, "event.batch_created.location == 'Ratnagiri'")

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(7), events[0].BatchCreated.BatchID)
}

func TestQueryInvalidFilterExpression(t *testing.T) {
	svc := newEventFixture(t)

	_, err := svc.Query("", 0, "event.kind ==")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter expression")
}

func TestQueryNonBooleanFilter(t *testing.T) {
	svc := newEventFixture(t)

	_, err := svc.Query("", 0, "event.kind")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")
}

func TestQueryCachesCompiledFilters(t *testing.T) {
	svc := newEventFixture(t)
	expr := "event.kind == 'BatchCreated'"

	_, err := svc.Query("", 0, expr)
	require.NoError(t, err)

	svc.mu.RLock()
	_, cached := svc.cache[expr]
	svc.mu.RUnlock()
	assert.True(t, cached)
}
