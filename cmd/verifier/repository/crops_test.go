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

func TestCropRepository_Upsert(t *testing.T) {
	cropType := "Coconut"
	state := "Kerala"
	area := 2.5

	tests := []struct {
		name    string
		crop    *models.Crop
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr bool
	}{
		{
			name: "full registration row",
			crop: &models.Crop{
				ProductID:       41,
				Name:            "Coconut",
				Description:     "organic, tall variety",
				ContentHash:     "Qm1234",
				Originator:      "0xfarm",
				CurrentHolder:   "0xfarm",
				PriceMinorUnits: 129_900,
				CropType:        &cropType,
				State:           &state,
				AreaHectares:    &area,
				CreatedAt:       time.Now(),
			},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO crops`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			wantErr: false,
		},
		{
			name: "partial event-driven row",
			crop: &models.Crop{
				ProductID:       42,
				Name:            "Rice",
				Originator:      "0xfarm",
				CurrentHolder:   "0xfarm",
				PriceMinorUnits: 4_500,
				CreatedAt:       time.Now(),
			},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO crops`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			wantErr: false,
		},
		{
			name: "database error",
			crop: &models.Crop{ProductID: 43, Name: "Wheat"},
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO crops`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewCropRepository(mock)
			tt.setup(mock)

			err := repo.Upsert(context.Background(), tt.crop)

			if (err != nil) != tt.wantErr {
				t.Errorf("Upsert() error = %v, wantErr %v", err, tt.wantErr)
			}

			expectationsWereMet(t, mock)
		})
	}
}

func TestCropRepository_GetByID(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		productID  int64
		setup      func(mock pgxmock.PgxPoolIface)
		wantErr    bool
		wantNoRows bool
	}{
		{
			name:      "found",
			productID: 41,
			setup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{
					"product_id", "name", "description", "content_hash", "originator",
					"current_holder", "price_minor_units", "status_code",
					"crop_type", "state", "area_hectares", "created_at", "updated_at",
				}).AddRow(
					int64(41), "Coconut", "organic", "Qm1234", "0xfarm",
					"0xdist", int64(129_900), int16(2),
					nil, nil, nil, now, now,
				)
				mock.ExpectQuery(`FROM crops`).
					WithArgs(pgxmock.AnyArg()).
					WillReturnRows(rows)
			},
			wantErr: false,
		},
		{
			name:      "not found",
			productID: 999,
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM crops`).
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
			repo := NewCropRepository(mock)
			tt.setup(mock)

			crop, err := repo.GetByID(context.Background(), tt.productID)

			if (err != nil) != tt.wantErr {
				t.Errorf("GetByID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantNoRows && !errors.Is(err, pgx.ErrNoRows) {
				t.Errorf("GetByID() error = %v, want wrapped pgx.ErrNoRows", err)
			}
			if !tt.wantErr {
				if crop == nil {
					t.Fatal("GetByID() returned nil crop")
				}
				if crop.ProductID != tt.productID {
					t.Errorf("GetByID() product_id = %d, want %d", crop.ProductID, tt.productID)
				}
				if crop.CurrentHolder != "0xdist" {
					t.Errorf("GetByID() current_holder = %q, want %q", crop.CurrentHolder, "0xdist")
				}
			}

			expectationsWereMet(t, mock)
		})
	}
}

func TestCropRepository_UpdateHolder(t *testing.T) {
	mock := newMockPool(t)
	repo := NewCropRepository(mock)

	mock.ExpectExec(`UPDATE crops`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateHolder(context.Background(), 41, "0xretail"); err != nil {
		t.Errorf("UpdateHolder() error = %v", err)
	}

	expectationsWereMet(t, mock)
}

func TestCropRepository_UpdateStatus(t *testing.T) {
	mock := newMockPool(t)
	repo := NewCropRepository(mock)

	mock.ExpectExec(`UPDATE crops`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateStatus(context.Background(), 41, 5); err != nil {
		t.Errorf("UpdateStatus() error = %v", err)
	}

	expectationsWereMet(t, mock)
}
