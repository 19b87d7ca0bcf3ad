package models

import "time"

// Crop is the off-chain projection of one ledger product, enriched with
// agronomic detail the ledger does not carry.
// Maps to: crops table
type Crop struct {
	// Ledger product id
	ProductID int64 `db:"product_id" json:"product_id"`

	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	ContentHash string `db:"content_hash" json:"content_hash"`

	// Creator address, fixed for the record's lifetime
	Originator string `db:"originator" json:"originator"`

	// Current custodian; moved by the anchor recorder on ownership events
	CurrentHolder string `db:"current_holder" json:"current_holder"`

	// Asking price in display-currency minor units
	PriceMinorUnits int64 `db:"price_minor_units" json:"price_minor_units"`

	StatusCode int16 `db:"status_code" json:"status_code"`

	// Off-chain agronomic fields, supplied at registration and fed to the
	// price advisor. Nil when the registrar did not provide them.
	CropType     *string  `db:"crop_type" json:"crop_type,omitempty"`
	State        *string  `db:"state" json:"state,omitempty"`
	AreaHectares *float64 `db:"area_hectares" json:"area_hectares,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
