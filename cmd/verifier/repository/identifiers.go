package repository

import (
	"context"
	"fmt"

	"github.com/farmtrace/provenance/cmd/verifier/models"
	"github.com/farmtrace/provenance/common/db"
)

// IdentifierRepository handles database operations for issuance audit rows
type IdentifierRepository struct {
	db db.Querier
}

// NewIdentifierRepository creates a new identifier repository
func NewIdentifierRepository(db db.Querier) *IdentifierRepository {
	return &IdentifierRepository{db: db}
}

// Create inserts an issuance audit row. Product identifiers carry no
// anchor, so their audit row is written alone.
func (r *IdentifierRepository) Create(ctx context.Context, ident *models.IssuedIdentifier) error {
	query := `
		INSERT INTO issued_identifiers (
			nonce, kind, subject_id, url, assurance, issued_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.Exec(ctx, query,
		ident.Nonce,
		ident.Kind,
		ident.SubjectID,
		ident.URL,
		ident.Assurance,
		ident.IssuedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create issuance audit row: %w", err)
	}

	return nil
}

// GetByNonce retrieves an issuance audit row
func (r *IdentifierRepository) GetByNonce(ctx context.Context, nonce string) (*models.IssuedIdentifier, error) {
	query := `
		SELECT
			nonce, kind, subject_id, url, assurance, issued_at
		FROM issued_identifiers
		WHERE nonce = $1
	`

	ident := &models.IssuedIdentifier{}
	err := r.db.QueryRow(ctx, query, nonce).Scan(
		&ident.Nonce,
		&ident.Kind,
		&ident.SubjectID,
		&ident.URL,
		&ident.Assurance,
		&ident.IssuedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get issued identifier: %w", err)
	}

	return ident, nil
}

// CountBySubject reports how many identifiers were minted for one subject,
// split by assurance. Feeds the issuance analytics endpoint.
func (r *IdentifierRepository) CountBySubject(ctx context.Context, kind string, subjectID int64) (map[string]int64, error) {
	query := `
		SELECT assurance, COUNT(*)
		FROM issued_identifiers
		WHERE kind = $1 AND subject_id = $2
		GROUP BY assurance
	`

	rows, err := r.db.Query(ctx, query, kind, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count issued identifiers: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var assurance string
		var n int64
		if err := rows.Scan(&assurance, &n); err != nil {
			return nil, fmt.Errorf("failed to scan identifier count: %w", err)
		}
		counts[assurance] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifier counts: %w", err)
	}

	return counts, nil
}
