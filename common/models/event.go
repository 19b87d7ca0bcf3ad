package models

import (
	"fmt"
	"time"
)

// EventKind discriminates the DomainEvent union.
type EventKind string

const (
	EventProductCreated       EventKind = "ProductCreated"
	EventBatchCreated         EventKind = "BatchCreated"
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
	EventStatusUpdated        EventKind = "StatusUpdated"
	EventBatchLocationUpdated EventKind = "BatchLocationUpdated"
	EventBatchPurchased       EventKind = "BatchPurchased"

	// EventKindWildcard subscribes an observer to every kind.
	EventKindWildcard EventKind = "*"
)

// EventKinds returns every concrete kind in a stable order.
func EventKinds() []EventKind {
	return []EventKind{
		EventProductCreated,
		EventBatchCreated,
		EventOwnershipTransferred,
		EventStatusUpdated,
		EventBatchLocationUpdated,
		EventBatchPurchased,
	}
}

// KnownKind reports whether k belongs to the closed event union.
// The wildcard is a subscription selector, not a kind.
func KnownKind(k EventKind) bool {
	switch k {
	case EventProductCreated, EventBatchCreated, EventOwnershipTransferred,
		EventStatusUpdated, EventBatchLocationUpdated, EventBatchPurchased:
		return true
	}
	return false
}

// SequenceKey totally orders ledger log entries and is the dedup key.
// Providers may redeliver logs on reconnect; two deliveries with the same
// SequenceKey are the same ledger entry.
type SequenceKey struct {
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint32 `json:"log_index"`
}

// Before reports whether k was recorded earlier on the ledger than o.
func (k SequenceKey) Before(o SequenceKey) bool {
	if k.BlockNumber != o.BlockNumber {
		return k.BlockNumber < o.BlockNumber
	}
	return k.LogIndex < o.LogIndex
}

func (k SequenceKey) String() string {
	return fmt.Sprintf("%d:%d", k.BlockNumber, k.LogIndex)
}

// ProductCreatedPayload carries the fields of a ProductCreated log.
type ProductCreatedPayload struct {
	ProductID       uint64  `json:"product_id"`
	Originator      Address `json:"originator"`
	Name            string  `json:"name"`
	PriceMinorUnits uint64  `json:"price_minor_units"`
}

// BatchCreatedPayload carries the fields of a BatchCreated log.
type BatchCreatedPayload struct {
	BatchID    uint64   `json:"batch_id"`
	Handler    Address  `json:"handler"`
	ProductIDs []uint64 `json:"product_ids"`
	Location   string   `json:"location"`
}

// OwnershipTransferredPayload carries the fields of an OwnershipTransferred log.
type OwnershipTransferredPayload struct {
	ProductID uint64  `json:"product_id"`
	From      Address `json:"from"`
	To        Address `json:"to"`
}

// StatusUpdatedPayload carries a lifecycle stage change for a product or batch.
type StatusUpdatedPayload struct {
	Subject    IdentifierKind `json:"subject"`
	SubjectID  uint64         `json:"subject_id"`
	StatusCode uint8          `json:"status_code"`
}

// BatchLocationUpdatedPayload carries the fields of a BatchLocationUpdated log.
type BatchLocationUpdatedPayload struct {
	BatchID  uint64 `json:"batch_id"`
	Location string `json:"location"`
}

// BatchPurchasedPayload carries the fields of a BatchPurchased log.
type BatchPurchasedPayload struct {
	BatchID        uint64  `json:"batch_id"`
	Buyer          Address `json:"buyer"`
	PaidMinorUnits uint64  `json:"paid_minor_units"`
}

// DomainEvent is the normalized projection of one ledger log entry.
// It is a closed tagged union: Kind names the variant and exactly one
// payload pointer is non-nil, the one matching Kind. OccurredAt is the
// block timestamp and may be zero when the provider could not supply it.
type DomainEvent struct {
	Kind           EventKind   `json:"kind"`
	SequenceKey    SequenceKey `json:"sequence_key"`
	TransactionRef TxRef       `json:"transaction_ref"`
	OccurredAt     time.Time   `json:"occurred_at"`

	ProductCreated       *ProductCreatedPayload       `json:"product_created,omitempty"`
	BatchCreated         *BatchCreatedPayload         `json:"batch_created,omitempty"`
	OwnershipTransferred *OwnershipTransferredPayload `json:"ownership_transferred,omitempty"`
	StatusUpdated        *StatusUpdatedPayload        `json:"status_updated,omitempty"`
	BatchLocationUpdated *BatchLocationUpdatedPayload `json:"batch_location_updated,omitempty"`
	BatchPurchased       *BatchPurchasedPayload       `json:"batch_purchased,omitempty"`
}

// payloadKinds lists the kinds whose payload slot is populated.
func (e *DomainEvent) payloadKinds() []EventKind {
	var kinds []EventKind
	if e.ProductCreated != nil {
		kinds = append(kinds, EventProductCreated)
	}
	if e.BatchCreated != nil {
		kinds = append(kinds, EventBatchCreated)
	}
	if e.OwnershipTransferred != nil {
		kinds = append(kinds, EventOwnershipTransferred)
	}
	if e.StatusUpdated != nil {
		kinds = append(kinds, EventStatusUpdated)
	}
	if e.BatchLocationUpdated != nil {
		kinds = append(kinds, EventBatchLocationUpdated)
	}
	if e.BatchPurchased != nil {
		kinds = append(kinds, EventBatchPurchased)
	}
	return kinds
}

// Validate enforces the union shape at normalization time: a known kind,
// a transaction reference, and exactly one payload in the slot matching Kind.
func (e *DomainEvent) Validate() error {
	if !KnownKind(e.Kind) {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.TransactionRef == "" {
		return fmt.Errorf("event %s missing transaction ref", e.SequenceKey)
	}
	kinds := e.payloadKinds()
	if len(kinds) != 1 {
		return fmt.Errorf("event %s carries %d payloads, want exactly 1", e.SequenceKey, len(kinds))
	}
	if kinds[0] != e.Kind {
		return fmt.Errorf("event %s payload is %s, kind is %s", e.SequenceKey, kinds[0], e.Kind)
	}
	return nil
}
