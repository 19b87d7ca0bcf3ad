package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/farmtrace/provenance/common/identifier"
	"github.com/farmtrace/provenance/common/models"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
)

// ErrBatchNotSynchronized means the batch exists on the ledger but its
// projection row has not landed yet. Issuance needs the row: the anchor
// records the creating transaction from it. Callers retry shortly.
var ErrBatchNotSynchronized = errors.New("batch not yet synchronized")

// nonceClaims is the redis key namespace reserving freshly minted nonces.
const nonceClaims = "issuance:nonce:"

// IssuanceService mints identifiers and writes their audit trail. A
// public batch identifier is minted together with its anchoring row in
// one transaction; one without an anchor must never exist, verification
// treats anchor absence as authoritative.
type IssuanceService struct {
	codec    *identifier.Codec
	ledger   LedgerReader
	history  HistorySource
	batches  BatchStore
	anchors  AnchorStore
	idents   IdentifierStore
	claims   NonceClaimer
	claimTTL time.Duration
	metrics  Metrics
	logger   Logger
}

// NewIssuanceService creates the issuance service.
func NewIssuanceService(
	codec *identifier.Codec,
	ledgerReader LedgerReader,
	history HistorySource,
	batches BatchStore,
	anchors AnchorStore,
	idents IdentifierStore,
	claims NonceClaimer,
	claimTTL time.Duration,
	metrics Metrics,
	logger Logger,
) *IssuanceService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &IssuanceService{
		codec:    codec,
		ledger:   ledgerReader,
		history:  history,
		batches:  batches,
		anchors:  anchors,
		idents:   idents,
		claims:   claims,
		claimTTL: claimTTL,
		metrics:  metrics,
		logger:   logger,
	}
}

// Mint issues a fresh identifier for an existing ledger subject.
func (s *IssuanceService) Mint(ctx context.Context, kind models.IdentifierKind, id uint64) (*vmodels.IssuedIdentifier, error) {
	if err := s.subjectExists(ctx, kind, id); err != nil {
		return nil, err
	}

	ident, err := s.codec.Mint(kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to mint identifier: %w", err)
	}
	if ident.Assurance == models.AssuranceFallback {
		s.logger.Warn("strong randomness unavailable, minted fallback nonce", "kind", kind, "subject_id", id)
	}

	claimed, err := s.claims.SetNX(ctx, nonceClaims+ident.Nonce, ident.URL, s.claimTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim nonce: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("nonce collision on mint for %s %d", kind, id)
	}

	row := &vmodels.IssuedIdentifier{
		Nonce:     ident.Nonce,
		Kind:      string(kind),
		SubjectID: int64(id),
		URL:       ident.URL,
		Assurance: string(ident.Assurance),
		IssuedAt:  time.Now().UTC(),
	}

	if kind == models.KindBatch {
		if err := s.anchorBatch(ctx, row); err != nil {
			return nil, err
		}
	} else {
		if err := s.idents.Create(ctx, row); err != nil {
			return nil, err
		}
	}

	s.metrics.IdentifierMinted(string(kind), string(ident.Assurance))
	s.logger.Info("identifier minted",
		"kind", kind,
		"subject_id", id,
		"nonce", ident.Nonce,
		"assurance", ident.Assurance,
	)
	return row, nil
}

// IssuanceStats reports how many identifiers exist for one subject,
// split by nonce assurance.
func (s *IssuanceService) IssuanceStats(ctx context.Context, kind models.IdentifierKind, id uint64) (map[string]int64, error) {
	counts, err := s.idents.CountBySubject(ctx, string(kind), int64(id))
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// subjectExists confirms the mint target is on the ledger. Codes for
// subjects that do not exist would verify as invalid forever.
func (s *IssuanceService) subjectExists(ctx context.Context, kind models.IdentifierKind, id uint64) error {
	switch kind {
	case models.KindProduct:
		if _, err := s.ledger.ReadProduct(ctx, id); err != nil {
			return fmt.Errorf("failed to resolve product %d: %w", id, err)
		}
	case models.KindBatch:
		if _, err := s.ledger.ReadBatch(ctx, id); err != nil {
			return fmt.Errorf("failed to resolve batch %d: %w", id, err)
		}
	default:
		return fmt.Errorf("cannot mint identifier for kind %q", kind)
	}
	return nil
}

// anchorBatch writes the anchoring row and the audit row in one
// transaction. The anchor ties the nonce to the batch's creating
// transaction and to a hash of its immutable fields, both taken from
// the projection.
func (s *IssuanceService) anchorBatch(ctx context.Context, row *vmodels.IssuedIdentifier) error {
	rec, err := s.batches.GetByID(ctx, row.SubjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("batch %d: %w", row.SubjectID, ErrBatchNotSynchronized)
		}
		return fmt.Errorf("failed to load batch %d: %w", row.SubjectID, err)
	}
	if rec.TxRef == "" {
		return fmt.Errorf("batch %d: %w", row.SubjectID, ErrBatchNotSynchronized)
	}

	snapshot := vmodels.BatchSnapshot{
		BatchID:    rec.BatchID,
		Handler:    rec.Handler,
		ProductIDs: rec.ProductIDs,
	}
	dataHash, err := snapshot.Hash()
	if err != nil {
		return fmt.Errorf("failed to hash batch snapshot: %w", err)
	}

	anchor := &vmodels.BatchAnchor{
		BatchID:    rec.BatchID,
		Nonce:      row.Nonce,
		TxHash:     rec.TxRef,
		DataHash:   dataHash,
		Snapshot:   snapshot,
		Verified:   historyHasBatchTx(s.history, models.TxRef(rec.TxRef)),
		AnchoredAt: row.IssuedAt,
	}
	return s.anchors.CreateWithAudit(ctx, anchor, row)
}
