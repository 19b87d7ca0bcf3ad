package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/farmtrace/provenance/cmd/verifier/models"
)

func TestBatchRepository_Upsert(t *testing.T) {
	tests := []struct {
		name    string
		rec     *models.BatchRecord
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr bool
	}{
		{
			name: "successful upsert",
			rec: &models.BatchRecord{
				BatchID:    7,
				Handler:    "0xdist",
				ProductIDs: []int64{41, 42},
				Location:   "Kochi depot",
				TxRef:      "0xabc",
				CreatedAt:  time.Now(),
			},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO batches`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			wantErr: false,
		},
		{
			name: "database error",
			rec:  &models.BatchRecord{BatchID: 8, Handler: "0xdist"},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO batches`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewBatchRepository(mock)
			tt.setup(mock)

			err := repo.Upsert(context.Background(), tt.rec)

			if (err != nil) != tt.wantErr {
				t.Errorf("Upsert() error = %v, wantErr %v", err, tt.wantErr)
			}

			expectationsWereMet(t, mock)
		})
	}
}

func TestBatchRepository_GetByID(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		batchID    int64
		setup      func(mock pgxmock.PgxPoolIface)
		wantErr    bool
		wantNoRows bool
	}{
		{
			name:    "found",
			batchID: 7,
			setup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{
					"batch_id", "handler", "product_ids", "location", "status_code",
					"tx_ref", "purchased_by", "paid_minor_units", "created_at", "updated_at",
				}).AddRow(
					int64(7), "0xdist", []int64{41, 42}, "Kochi depot", int16(4),
					"0xabc", nil, nil, now, now,
				)
				mock.ExpectQuery(`FROM batches`).
					WithArgs(pgxmock.AnyArg()).
					WillReturnRows(rows)
			},
			wantErr: false,
		},
		{
			name:    "not found",
			batchID: 999,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM batches`).
					WithArgs(pgxmock.AnyArg()).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr:    true,
			wantNoRows: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewBatchRepository(mock)
			tt.setup(mock)

			rec, err := repo.GetByID(context.Background(), tt.batchID)

			if (err != nil) != tt.wantErr {
				t.Errorf("GetByID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantNoRows && !errors.Is(err, pgx.ErrNoRows) {
				t.Errorf("GetByID() error = %v, want wrapped pgx.ErrNoRows", err)
			}
			if !tt.wantErr {
				if rec == nil {
					t.Fatal("GetByID() returned nil record")
				}
				if rec.BatchID != tt.batchID {
					t.Errorf("GetByID() batch_id = %d, want %d", rec.BatchID, tt.batchID)
				}
				if len(rec.ProductIDs) != 2 {
					t.Errorf("GetByID() product_ids = %v, want 2 entries", rec.ProductIDs)
				}
				if rec.PurchasedBy != nil {
					t.Errorf("GetByID() purchased_by = %v, want nil", rec.PurchasedBy)
				}
			}

			expectationsWereMet(t, mock)
		})
	}
}

func TestBatchRepository_UpdateLocation(t *testing.T) {
	mock := newMockPool(t)
	repo := NewBatchRepository(mock)

	mock.ExpectExec(`UPDATE batches`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateLocation(context.Background(), 7, "Chennai hub"); err != nil {
		t.Errorf("UpdateLocation() error = %v", err)
	}

	expectationsWereMet(t, mock)
}

func TestBatchRepository_RecordPurchase(t *testing.T) {
	mock := newMockPool(t)
	repo := NewBatchRepository(mock)

	mock.ExpectExec(`UPDATE batches`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.RecordPurchase(context.Background(), 7, "0xbuyer", 134_400); err != nil {
		t.Errorf("RecordPurchase() error = %v", err)
	}

	expectationsWereMet(t, mock)
}
