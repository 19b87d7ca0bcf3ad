package models

// SourceOfTruth names which store(s) backed a verification result.
type SourceOfTruth string

const (
	// SourceLedger means the result was read from ledger state alone.
	SourceLedger SourceOfTruth = "ledger"

	// SourceHybrid means an off-chain row was cross-referenced against
	// ledger anchoring records.
	SourceHybrid SourceOfTruth = "hybrid"
)

// PriceAdvisory is the optional market-price estimate attached to valid
// product verifications when the external pricing service is configured.
type PriceAdvisory struct {
	Predicted float64 `json:"predicted"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	Currency  string  `json:"currency"`
}

// VerificationResult is the outcome of resolving one scanned identifier.
// Constructed fresh per request and never cached; the off-chain store may
// change between scans. Exactly one of Product and Batch is set when Valid.
type VerificationResult struct {
	Valid bool           `json:"valid"`
	Kind  IdentifierKind `json:"kind,omitempty"`
	ID    uint64         `json:"id,omitempty"`

	Product *Product `json:"product,omitempty"`
	Batch   *Batch   `json:"batch,omitempty"`

	// Ordered holder transitions, oldest first
	CustodyChain []CustodyEntry `json:"custody_chain,omitempty"`

	SourceOfTruth SourceOfTruth `json:"source_of_truth,omitempty"`

	// Human-readable outcome; on Valid == false this is the only place
	// the failure reason surfaces
	Message string `json:"message,omitempty"`

	PriceAdvisory *PriceAdvisory `json:"price_advisory,omitempty"`
}
