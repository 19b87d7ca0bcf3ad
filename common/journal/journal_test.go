package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/farmtrace/provenance/common/models"
)

func openTestStore(t *testing.T, capacity int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"), capacity)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testEvent(block uint64, logIndex uint32) models.DomainEvent {
	return models.DomainEvent{
		Kind:           models.EventProductCreated,
		SequenceKey:    models.SequenceKey{BlockNumber: block, LogIndex: logIndex},
		TransactionRef: "0xabc",
		OccurredAt:     time.Unix(int64(block), 0).UTC(),
		ProductCreated: &models.ProductCreatedPayload{ProductID: block, Name: "okra"},
	}
}

func TestAppendAndHas(t *testing.T) {
	store := openTestStore(t, 16)

	event := testEvent(100, 0)
	if err := store.Append(event); err != nil {
		t.Fatal(err)
	}

	found, err := store.Has(event.SequenceKey)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("journaled key not found")
	}

	found, err = store.Has(models.SequenceKey{BlockNumber: 100, LogIndex: 1})
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("unjournaled key reported present")
	}
}

func TestRecentNewestFirst(t *testing.T) {
	store := openTestStore(t, 16)

	for _, e := range []models.DomainEvent{
		testEvent(100, 0),
		testEvent(100, 1),
		testEvent(101, 0),
	} {
		if err := store.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	events, err := store.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].SequenceKey != (models.SequenceKey{BlockNumber: 101, LogIndex: 0}) {
		t.Fatalf("newest = %s", events[0].SequenceKey)
	}
	if events[1].SequenceKey != (models.SequenceKey{BlockNumber: 100, LogIndex: 1}) {
		t.Fatalf("second = %s", events[1].SequenceKey)
	}
	if events[0].ProductCreated == nil {
		t.Fatal("payload lost through the journal")
	}
}

func TestCapacityPrunesOldest(t *testing.T) {
	store := openTestStore(t, 2)

	for block := uint64(1); block <= 4; block++ {
		if err := store.Append(testEvent(block, 0)); err != nil {
			t.Fatal(err)
		}
	}

	size, err := store.Size()
	if err != nil {
		t.Fatal(err)
	}
	if size != 2 {
		t.Fatalf("size = %d, want 2", size)
	}

	found, err := store.Has(models.SequenceKey{BlockNumber: 1, LogIndex: 0})
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("oldest event survived pruning")
	}

	found, err = store.Has(models.SequenceKey{BlockNumber: 4, LogIndex: 0})
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("newest event pruned")
	}
}

func TestReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := Open(path, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(testEvent(7, 3)); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	found, err := reopened.Has(models.SequenceKey{BlockNumber: 7, LogIndex: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("event lost across reopen")
	}
}
