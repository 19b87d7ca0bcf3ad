package models

import "time"

// Address is a ledger account address in its checksummed string form.
type Address string

// TxRef is the ledger transaction hash an event or anchor points at.
type TxRef string

// Product is the ledger-held record of one produce item.
// Created once by a ledger transaction; CurrentHolder and StatusCode
// mutate on later transactions, nothing is ever deleted.
type Product struct {
	// Ledger-assigned id, unique across all products
	ID uint64 `json:"id"`

	Name        string `json:"name"`
	Description string `json:"description"`

	// Reference to external media (image, certificate scan); never
	// dereferenced by this subsystem
	ContentHash string `json:"content_hash"`

	// Creator address, fixed for the lifetime of the record
	Originator Address `json:"originator"`

	// Current custodian; changes on ownership transfer
	CurrentHolder Address `json:"current_holder"`

	// Asking price in display-currency minor units
	PriceMinorUnits uint64 `json:"price_minor_units"`

	// Ledger timestamp of the creating transaction
	CreatedAt time.Time `json:"created_at"`

	StatusCode uint8 `json:"status_code"`

	// Ordered certification labels attached at creation
	Certificates []string `json:"certificates,omitempty"`
}

// Batch groups a non-empty set of product ids under one shipment.
type Batch struct {
	ID uint64 `json:"id"`

	// Member product ids; insertion order carries no meaning
	ProductIDs []uint64 `json:"product_ids"`

	// Address responsible for the shipment
	Handler Address `json:"handler"`

	CreatedAt time.Time `json:"created_at"`

	// Free-text current location, updated in transit
	Location string `json:"location"`

	StatusCode uint8 `json:"status_code"`
}

// CustodyEntry is one holder transition in a product's custody chain.
// Since is nil when the transition timestamp is not known (direct ledger
// reads return holders only; event history fills timestamps in).
type CustodyEntry struct {
	Holder Address    `json:"holder"`
	Since  *time.Time `json:"since,omitempty"`
}
