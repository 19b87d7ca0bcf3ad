package models

import "time"

// BatchRecord is the off-chain projection of one ledger batch.
// Maps to: batches table
type BatchRecord struct {
	// Ledger batch id
	BatchID int64 `db:"batch_id" json:"batch_id"`

	// Address responsible for the shipment
	Handler string `db:"handler" json:"handler"`

	// Member product ids; insertion order carries no meaning
	ProductIDs []int64 `db:"product_ids" json:"product_ids"`

	// Free-text current location, updated in transit
	Location string `db:"location" json:"location"`

	StatusCode int16 `db:"status_code" json:"status_code"`

	// Hash of the transaction that created the batch on the ledger
	TxRef string `db:"tx_ref" json:"tx_ref"`

	// Purchase outcome; nil until a BatchPurchased event lands
	PurchasedBy    *string `db:"purchased_by" json:"purchased_by,omitempty"`
	PaidMinorUnits *int64  `db:"paid_minor_units" json:"paid_minor_units,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
