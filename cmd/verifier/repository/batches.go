package repository

import (
	"context"
	"fmt"

	"github.com/farmtrace/provenance/cmd/verifier/models"
	"github.com/farmtrace/provenance/common/db"
)

// BatchRepository handles database operations for batch projections
type BatchRepository struct {
	db db.Querier
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db db.Querier) *BatchRepository {
	return &BatchRepository{db: db}
}

// Upsert inserts a projection row or merges it into an existing one. An
// empty incoming tx_ref never clears a recorded one.
func (r *BatchRepository) Upsert(ctx context.Context, rec *models.BatchRecord) error {
	query := `
		INSERT INTO batches (
			batch_id, handler, product_ids, location, status_code,
			tx_ref, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, now()
		)
		ON CONFLICT (batch_id) DO UPDATE SET
			handler     = EXCLUDED.handler,
			product_ids = EXCLUDED.product_ids,
			location    = EXCLUDED.location,
			status_code = EXCLUDED.status_code,
			tx_ref      = COALESCE(NULLIF(EXCLUDED.tx_ref, ''), batches.tx_ref),
			updated_at  = now()
	`

	_, err := r.db.Exec(ctx, query,
		rec.BatchID,
		rec.Handler,
		rec.ProductIDs,
		rec.Location,
		rec.StatusCode,
		rec.TxRef,
		rec.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert batch: %w", err)
	}

	return nil
}

// GetByID retrieves a batch projection by its ledger id
func (r *BatchRepository) GetByID(ctx context.Context, batchID int64) (*models.BatchRecord, error) {
	query := `
		SELECT
			batch_id, handler, product_ids, location, status_code,
			tx_ref, purchased_by, paid_minor_units, created_at, updated_at
		FROM batches
		WHERE batch_id = $1
	`

	rec := &models.BatchRecord{}
	err := r.db.QueryRow(ctx, query, batchID).Scan(
		&rec.BatchID,
		&rec.Handler,
		&rec.ProductIDs,
		&rec.Location,
		&rec.StatusCode,
		&rec.TxRef,
		&rec.PurchasedBy,
		&rec.PaidMinorUnits,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return rec, nil
}

// UpdateLocation sets the in-transit location of a batch projection
func (r *BatchRepository) UpdateLocation(ctx context.Context, batchID int64, location string) error {
	query := `
		UPDATE batches
		SET location = $2, updated_at = now()
		WHERE batch_id = $1
	`

	_, err := r.db.Exec(ctx, query, batchID, location)
	if err != nil {
		return fmt.Errorf("failed to update batch location: %w", err)
	}

	return nil
}

// UpdateStatus sets the lifecycle status code of a batch projection
func (r *BatchRepository) UpdateStatus(ctx context.Context, batchID int64, statusCode int16) error {
	query := `
		UPDATE batches
		SET status_code = $2, updated_at = now()
		WHERE batch_id = $1
	`

	_, err := r.db.Exec(ctx, query, batchID, statusCode)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	return nil
}

// RecordPurchase marks a batch projection as bought
func (r *BatchRepository) RecordPurchase(ctx context.Context, batchID int64, buyer string, paidMinorUnits int64) error {
	query := `
		UPDATE batches
		SET purchased_by = $2, paid_minor_units = $3, updated_at = now()
		WHERE batch_id = $1
	`

	_, err := r.db.Exec(ctx, query, batchID, buyer, paidMinorUnits)
	if err != nil {
		return fmt.Errorf("failed to record batch purchase: %w", err)
	}

	return nil
}
