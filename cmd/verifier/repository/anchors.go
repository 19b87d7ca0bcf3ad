package repository

import (
	"context"
	"fmt"

	"github.com/farmtrace/provenance/cmd/verifier/models"
	"github.com/farmtrace/provenance/common/db"
)

// AnchorRepository handles database operations for batch anchoring records
type AnchorRepository struct {
	db db.Querier
}

// NewAnchorRepository creates a new anchor repository
func NewAnchorRepository(db db.Querier) *AnchorRepository {
	return &AnchorRepository{db: db}
}

// CreateWithAudit writes an anchoring record and its issuance audit row in
// one transaction. Either both land or neither does; a nonce that reaches
// a verifier always has its anchor.
func (r *AnchorRepository) CreateWithAudit(ctx context.Context, anchor *models.BatchAnchor, ident *models.IssuedIdentifier) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin issuance transaction: %w", err)
	}

	anchorQuery := `
		INSERT INTO batch_anchors (
			batch_id, nonce, tx_hash, data_hash, snapshot, verified, anchored_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err = tx.Exec(ctx, anchorQuery,
		anchor.BatchID,
		anchor.Nonce,
		anchor.TxHash,
		anchor.DataHash,
		anchor.Snapshot,
		anchor.Verified,
		anchor.AnchoredAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to create batch anchor: %w", err)
	}

	auditQuery := `
		INSERT INTO issued_identifiers (
			nonce, kind, subject_id, url, assurance, issued_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err = tx.Exec(ctx, auditQuery,
		ident.Nonce,
		ident.Kind,
		ident.SubjectID,
		ident.URL,
		ident.Assurance,
		ident.IssuedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to create issuance audit row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit issuance transaction: %w", err)
	}

	return nil
}

// Get retrieves an anchoring record by its issuance key
func (r *AnchorRepository) Get(ctx context.Context, batchID int64, nonce string) (*models.BatchAnchor, error) {
	query := `
		SELECT
			batch_id, nonce, tx_hash, data_hash, snapshot, verified, anchored_at
		FROM batch_anchors
		WHERE batch_id = $1 AND nonce = $2
	`

	anchor := &models.BatchAnchor{}
	err := r.db.QueryRow(ctx, query, batchID, nonce).Scan(
		&anchor.BatchID,
		&anchor.Nonce,
		&anchor.TxHash,
		&anchor.DataHash,
		&anchor.Snapshot,
		&anchor.Verified,
		&anchor.AnchoredAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get batch anchor: %w", err)
	}

	return anchor, nil
}

// MarkVerified flips every unverified anchor whose recorded transaction
// matches the observed one. Idempotent; redeliveries match zero rows.
func (r *AnchorRepository) MarkVerified(ctx context.Context, batchID int64, txHash string) error {
	query := `
		UPDATE batch_anchors
		SET verified = true
		WHERE batch_id = $1 AND tx_hash = $2 AND NOT verified
	`

	_, err := r.db.Exec(ctx, query, batchID, txHash)
	if err != nil {
		return fmt.Errorf("failed to mark anchor verified: %w", err)
	}

	return nil
}
