package repository

import (
	"context"
	"fmt"

	"github.com/farmtrace/provenance/cmd/verifier/models"
	"github.com/farmtrace/provenance/common/db"
)

// CropRepository handles database operations for product projections
type CropRepository struct {
	db db.Querier
}

// NewCropRepository creates a new crop repository
func NewCropRepository(db db.Querier) *CropRepository {
	return &CropRepository{db: db}
}

// Upsert inserts a projection row or merges it into an existing one.
// Event-driven writes carry partial data, so empty descriptive fields and
// nil agronomic fields never clobber values a fuller write recorded.
func (r *CropRepository) Upsert(ctx context.Context, crop *models.Crop) error {
	query := `
		INSERT INTO crops (
			product_id, name, description, content_hash, originator,
			current_holder, price_minor_units, status_code,
			crop_type, state, area_hectares, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now()
		)
		ON CONFLICT (product_id) DO UPDATE SET
			name              = EXCLUDED.name,
			description       = COALESCE(NULLIF(EXCLUDED.description, ''), crops.description),
			content_hash      = COALESCE(NULLIF(EXCLUDED.content_hash, ''), crops.content_hash),
			current_holder    = EXCLUDED.current_holder,
			price_minor_units = EXCLUDED.price_minor_units,
			status_code       = EXCLUDED.status_code,
			crop_type         = COALESCE(EXCLUDED.crop_type, crops.crop_type),
			state             = COALESCE(EXCLUDED.state, crops.state),
			area_hectares     = COALESCE(EXCLUDED.area_hectares, crops.area_hectares),
			updated_at        = now()
	`

	_, err := r.db.Exec(ctx, query,
		crop.ProductID,
		crop.Name,
		crop.Description,
		crop.ContentHash,
		crop.Originator,
		crop.CurrentHolder,
		crop.PriceMinorUnits,
		crop.StatusCode,
		crop.CropType,
		crop.State,
		crop.AreaHectares,
		crop.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert crop: %w", err)
	}

	return nil
}

// GetByID retrieves a product projection by its ledger id
func (r *CropRepository) GetByID(ctx context.Context, productID int64) (*models.Crop, error) {
	query := `
		SELECT
			product_id, name, description, content_hash, originator,
			current_holder, price_minor_units, status_code,
			crop_type, state, area_hectares, created_at, updated_at
		FROM crops
		WHERE product_id = $1
	`

	crop := &models.Crop{}
	err := r.db.QueryRow(ctx, query, productID).Scan(
		&crop.ProductID,
		&crop.Name,
		&crop.Description,
		&crop.ContentHash,
		&crop.Originator,
		&crop.CurrentHolder,
		&crop.PriceMinorUnits,
		&crop.StatusCode,
		&crop.CropType,
		&crop.State,
		&crop.AreaHectares,
		&crop.CreatedAt,
		&crop.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get crop: %w", err)
	}

	return crop, nil
}

// UpdateHolder moves custody of a product projection
func (r *CropRepository) UpdateHolder(ctx context.Context, productID int64, holder string) error {
	query := `
		UPDATE crops
		SET current_holder = $2, updated_at = now()
		WHERE product_id = $1
	`

	_, err := r.db.Exec(ctx, query, productID, holder)
	if err != nil {
		return fmt.Errorf("failed to update crop holder: %w", err)
	}

	return nil
}

// UpdateStatus sets the lifecycle status code of a product projection
func (r *CropRepository) UpdateStatus(ctx context.Context, productID int64, statusCode int16) error {
	query := `
		UPDATE crops
		SET status_code = $2, updated_at = now()
		WHERE product_id = $1
	`

	_, err := r.db.Exec(ctx, query, productID, statusCode)
	if err != nil {
		return fmt.Errorf("failed to update crop status: %w", err)
	}

	return nil
}
