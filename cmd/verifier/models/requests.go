package models

// VerifyRequest carries raw scanned text for resolution.
type VerifyRequest struct {
	Payload string `json:"payload"`
}

// MintRequest asks for a fresh identifier for an existing subject.
type MintRequest struct {
	// "product" or "batch"
	Kind string `json:"kind"`
	ID   uint64 `json:"id"`
}

// CreateProductRequest carries a createProduct submission. From is the
// submitting ledger account; empty selects the service's session account.
// The agronomic fields stay off-chain and feed the price advisor.
type CreateProductRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	ContentHash     string `json:"content_hash"`
	PriceMinorUnits uint64 `json:"price_minor_units"`
	From            string `json:"from,omitempty"`

	CropType     *string  `json:"crop_type,omitempty"`
	State        *string  `json:"state,omitempty"`
	AreaHectares *float64 `json:"area_hectares,omitempty"`
}

// CreateBatchRequest carries a createBatch submission.
type CreateBatchRequest struct {
	ProductIDs []uint64 `json:"product_ids"`
	Location   string   `json:"location"`
	From       string   `json:"from,omitempty"`
}

// UpdateLocationRequest carries an updateBatchLocation submission.
type UpdateLocationRequest struct {
	Location string `json:"location"`
	From     string `json:"from,omitempty"`
}

// PurchaseRequest carries a purchaseBatch submission. The paid value is
// derived server-side from the batch's member product prices.
type PurchaseRequest struct {
	From string `json:"from,omitempty"`
}
