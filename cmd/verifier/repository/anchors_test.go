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

func testAnchor() *models.BatchAnchor {
	return &models.BatchAnchor{
		BatchID:  7,
		Nonce:    "5aa8e3e6-9d3a-4a57-a2a3-1f6c18bc2fa0",
		TxHash:   "0xabc",
		DataHash: "d6b0d82cea4269b51572b8fab43adcee9fc3cf9a",
		Snapshot: models.BatchSnapshot{
			BatchID:    7,
			Handler:    "0xdist",
			ProductIDs: []int64{41, 42},
		},
		Verified:   false,
		AnchoredAt: time.Now(),
	}
}

func testIssuedIdentifier() *models.IssuedIdentifier {
	return &models.IssuedIdentifier{
		Nonce:     "5aa8e3e6-9d3a-4a57-a2a3-1f6c18bc2fa0",
		Kind:      "batch",
		SubjectID: 7,
		URL:       "https://scan.farmtrace.in/b/7/5aa8e3e6-9d3a-4a57-a2a3-1f6c18bc2fa0",
		Assurance: "strong",
		IssuedAt:  time.Now(),
	}
}

func TestAnchorRepository_CreateWithAudit(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr bool
	}{
		{
			name: "both rows committed",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO batch_anchors`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO issued_identifiers`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			},
			wantErr: false,
		},
		{
			name: "anchor insert fails, rolled back",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO batch_anchors`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnError(errors.New("duplicate key value violates unique constraint"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name: "audit insert fails, rolled back",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO batch_anchors`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectExec(`INSERT INTO issued_identifiers`).
					WithArgs(
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
					).
					WillReturnError(errors.New("duplicate key value violates unique constraint"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewAnchorRepository(mock)
			tt.setup(mock)

			err := repo.CreateWithAudit(context.Background(), testAnchor(), testIssuedIdentifier())

			if (err != nil) != tt.wantErr {
				t.Errorf("CreateWithAudit() error = %v, wantErr %v", err, tt.wantErr)
			}

			expectationsWereMet(t, mock)
		})
	}
}

func TestAnchorRepository_Get(t *testing.T) {
	now := time.Now()
	snapshot := models.BatchSnapshot{BatchID: 7, Handler: "0xdist", ProductIDs: []int64{41, 42}}

	tests := []struct {
		name       string
		setup      func(mock pgxmock.PgxPoolIface)
		wantErr    bool
		wantNoRows bool
	}{
		{
			name: "found",
			setup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{
					"batch_id", "nonce", "tx_hash", "data_hash", "snapshot", "verified", "anchored_at",
				}).AddRow(
					int64(7), "nonce-1", "0xabc", "d6b0d8", snapshot, true, now,
				)
				mock.ExpectQuery(`FROM batch_anchors`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnRows(rows)
			},
			wantErr: false,
		},
		{
			name: "absent",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM batch_anchors`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr:    true,
			wantNoRows: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewAnchorRepository(mock)
			tt.setup(mock)

			anchor, err := repo.Get(context.Background(), 7, "nonce-1")

			if (err != nil) != tt.wantErr {
				t.Errorf("Get() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantNoRows && !errors.Is(err, pgx.ErrNoRows) {
				t.Errorf("Get() error = %v, want wrapped pgx.ErrNoRows", err)
			}
			if !tt.wantErr {
				if anchor == nil {
					t.Fatal("Get() returned nil anchor")
				}
				if !anchor.Verified {
					t.Error("Get() verified = false, want true")
				}
				if anchor.Snapshot.Handler != "0xdist" {
					t.Errorf("Get() snapshot handler = %q, want %q", anchor.Snapshot.Handler, "0xdist")
				}
			}

			expectationsWereMet(t, mock)
		})
	}
}

func TestAnchorRepository_MarkVerified(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAnchorRepository(mock)

	mock.ExpectExec(`UPDATE batch_anchors`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.MarkVerified(context.Background(), 7, "0xabc"); err != nil {
		t.Errorf("MarkVerified() error = %v", err)
	}

	expectationsWereMet(t, mock)
}
