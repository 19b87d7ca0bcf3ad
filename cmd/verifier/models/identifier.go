package models

import "time"

// IssuedIdentifier is the audit record of one minted scan code. The nonce
// is unique across all issuances; uniqueness is enforced both here and by
// a redis claim taken before the row is written.
// Maps to: issued_identifiers table
type IssuedIdentifier struct {
	Nonce string `db:"nonce" json:"nonce"`

	// "product" or "batch"
	Kind string `db:"kind" json:"kind"`

	SubjectID int64  `db:"subject_id" json:"subject_id"`
	URL       string `db:"url" json:"url"`

	// Randomness grade of the nonce: "strong" or "fallback"
	Assurance string `db:"assurance" json:"assurance"`

	IssuedAt time.Time `db:"issued_at" json:"issued_at"`
}
