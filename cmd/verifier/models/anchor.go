package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// BatchAnchor ties one issued public batch identifier to the ledger
// transaction that created the batch. Written at issuance time; Verified
// flips true when the anchor recorder observes the matching BatchCreated
// event on the stream.
// Maps to: batch_anchors table, PK (batch_id, nonce)
type BatchAnchor struct {
	BatchID int64  `db:"batch_id" json:"batch_id"`
	Nonce   string `db:"nonce" json:"nonce"`

	// Creating transaction of the anchored batch
	TxHash string `db:"tx_hash" json:"tx_hash"`

	// Hex sha256 over the canonical snapshot at issuance time
	DataHash string `db:"data_hash" json:"data_hash"`

	// Immutable batch fields captured at issuance (JSONB)
	Snapshot BatchSnapshot `db:"snapshot" json:"snapshot"`

	Verified   bool      `db:"verified" json:"verified"`
	AnchoredAt time.Time `db:"anchored_at" json:"anchored_at"`
}

// BatchSnapshot is the immutable view of a batch that anchoring hashes
// cover. Location and status are excluded: both mutate in transit, and a
// hash over them would flag every legitimate update as drift.
type BatchSnapshot struct {
	BatchID    int64   `json:"batch_id"`
	Handler    string  `json:"handler"`
	ProductIDs []int64 `json:"product_ids"`
}

// Canonical returns the deterministic JSON encoding the data hash covers.
// Product ids are sorted so that insertion order never changes the hash.
func (s BatchSnapshot) Canonical() ([]byte, error) {
	ids := make([]int64, len(s.ProductIDs))
	copy(ids, s.ProductIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	canon := BatchSnapshot{BatchID: s.BatchID, Handler: s.Handler, ProductIDs: ids}
	data, err := json.Marshal(canon)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch snapshot: %w", err)
	}
	return data, nil
}

// Hash returns the hex sha256 of the canonical encoding.
func (s BatchSnapshot) Hash() (string, error) {
	data, err := s.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
