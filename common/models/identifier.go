package models

// IdentifierKind says what a scanned identifier points at.
type IdentifierKind string

const (
	KindProduct IdentifierKind = "product"
	KindBatch   IdentifierKind = "batch"
)

// Assurance grades the randomness source behind a minted nonce.
// Fallback nonces come from a timestamp plus pseudo-random composite and
// are recorded as lower assurance in the issuance audit.
type Assurance string

const (
	AssuranceStrong   Assurance = "strong"
	AssuranceFallback Assurance = "fallback"
)

// Identifier is the decoded form of a scanned QR payload. Immutable once
// minted. The nonce makes each issued code unique for audit and analytics;
// it is never an authorization token. Legacy verbose codes carry no nonce.
type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	ID    uint64         `json:"id"`
	Nonce string         `json:"nonce,omitempty"`

	// Set by Mint; empty on identifiers recovered by Parse from legacy forms
	URL       string    `json:"url,omitempty"`
	Assurance Assurance `json:"assurance,omitempty"`
}

// IsPublic reports whether the identifier was issued with a per-issuance
// nonce. Public batch identifiers are only ever minted alongside an
// off-chain anchoring row.
func (i Identifier) IsPublic() bool {
	return i.Nonce != ""
}
