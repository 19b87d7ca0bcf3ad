package chainsync

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/models"
)

// normalize maps a raw contract log onto the closed event union. Every
// payload is validated here; anything that does not fit is rejected so
// downstream consumers never see a partially-formed event.
func (s *Synchronizer) normalize(ctx context.Context, kind models.EventKind, raw ledger.RawLog) (models.DomainEvent, error) {
	event := models.DomainEvent{
		Kind: kind,
		SequenceKey: models.SequenceKey{
			BlockNumber: raw.BlockNumber,
			LogIndex:    raw.LogIndex,
		},
		TransactionRef: raw.TxHash,
		OccurredAt:     s.blockTime(ctx, raw.BlockNumber),
	}

	f := logFields(raw.Fields)
	var err error

	switch kind {
	case models.EventProductCreated:
		p := &models.ProductCreatedPayload{}
		if p.ProductID, err = f.id("productId"); err != nil {
			return event, err
		}
		if p.Originator, err = f.address("originator"); err != nil {
			return event, err
		}
		p.Name = f.text("name")
		if p.PriceMinorUnits, err = f.amount("price"); err != nil {
			return event, err
		}
		event.ProductCreated = p

	case models.EventBatchCreated:
		p := &models.BatchCreatedPayload{}
		if p.BatchID, err = f.id("batchId"); err != nil {
			return event, err
		}
		if p.Handler, err = f.address("handler"); err != nil {
			return event, err
		}
		if p.ProductIDs, err = f.idList("productIds"); err != nil {
			return event, err
		}
		p.Location = f.text("location")
		event.BatchCreated = p

	case models.EventOwnershipTransferred:
		p := &models.OwnershipTransferredPayload{}
		if p.ProductID, err = f.id("productId"); err != nil {
			return event, err
		}
		if p.From, err = f.address("from"); err != nil {
			return event, err
		}
		if p.To, err = f.address("to"); err != nil {
			return event, err
		}
		event.OwnershipTransferred = p

	case models.EventStatusUpdated:
		p := &models.StatusUpdatedPayload{}
		if p.Subject, err = f.subject("subject"); err != nil {
			return event, err
		}
		if p.SubjectID, err = f.id("subjectId"); err != nil {
			return event, err
		}
		if p.StatusCode, err = f.statusCode("statusCode"); err != nil {
			return event, err
		}
		event.StatusUpdated = p

	case models.EventBatchLocationUpdated:
		p := &models.BatchLocationUpdatedPayload{}
		if p.BatchID, err = f.id("batchId"); err != nil {
			return event, err
		}
		if p.Location, err = f.requiredText("location"); err != nil {
			return event, err
		}
		event.BatchLocationUpdated = p

	case models.EventBatchPurchased:
		p := &models.BatchPurchasedPayload{}
		if p.BatchID, err = f.id("batchId"); err != nil {
			return event, err
		}
		if p.Buyer, err = f.address("buyer"); err != nil {
			return event, err
		}
		if p.PaidMinorUnits, err = f.amount("paid"); err != nil {
			return event, err
		}
		event.BatchPurchased = p

	default:
		return event, fmt.Errorf("no normalization for kind %q", kind)
	}

	if err := event.Validate(); err != nil {
		return event, fmt.Errorf("normalized event invalid: %w", err)
	}
	return event, nil
}

// blockTime resolves the block's timestamp through the memo cache. A
// provider that cannot supply one yields the zero time rather than an
// error; timestamps are presentation data, not ordering data.
func (s *Synchronizer) blockTime(ctx context.Context, blockNumber uint64) time.Time {
	if ts, ok := s.tsCache.Get(blockNumber); ok {
		return ts
	}

	ts, err := s.clock.BlockTimestamp(ctx, blockNumber)
	if err != nil {
		s.log.Warn("block timestamp unavailable", "block_number", blockNumber, "error", err)
		return time.Time{}
	}

	s.tsCache.Put(blockNumber, ts)
	return ts
}

// logFields wraps the provider's loosely typed field map with coercing
// accessors. Providers hand back whatever their decoding layer produced:
// native integers, big.Int words, or decimal strings.
type logFields map[string]interface{}

func (f logFields) id(name string) (uint64, error) {
	v, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	return coerceUint64(name, v)
}

// amount reads a monetary field; absent means zero.
func (f logFields) amount(name string) (uint64, error) {
	v, ok := f[name]
	if !ok {
		return 0, nil
	}
	return coerceUint64(name, v)
}

func (f logFields) address(name string) (models.Address, error) {
	v, ok := f[name]
	if !ok {
		return "", fmt.Errorf("missing field %q", name)
	}
	str, ok := v.(string)
	if !ok || str == "" {
		return "", fmt.Errorf("field %q is not an address", name)
	}
	return models.Address(str), nil
}

func (f logFields) text(name string) string {
	if str, ok := f[name].(string); ok {
		return str
	}
	return ""
}

func (f logFields) requiredText(name string) (string, error) {
	str, ok := f[name].(string)
	if !ok || str == "" {
		return "", fmt.Errorf("missing field %q", name)
	}
	return str, nil
}

func (f logFields) subject(name string) (models.IdentifierKind, error) {
	str, ok := f[name].(string)
	if !ok {
		return "", fmt.Errorf("missing field %q", name)
	}
	switch models.IdentifierKind(str) {
	case models.KindProduct:
		return models.KindProduct, nil
	case models.KindBatch:
		return models.KindBatch, nil
	}
	return "", fmt.Errorf("field %q has unknown subject %q", name, str)
}

func (f logFields) statusCode(name string) (uint8, error) {
	v, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	n, err := coerceUint64(name, v)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint8 {
		return 0, fmt.Errorf("field %q out of status range: %d", name, n)
	}
	return uint8(n), nil
}

func (f logFields) idList(name string) ([]uint64, error) {
	v, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("missing field %q", name)
	}

	switch list := v.(type) {
	case []uint64:
		out := make([]uint64, len(list))
		copy(out, list)
		return out, nil
	case []interface{}:
		out := make([]uint64, 0, len(list))
		for i, item := range list {
			n, err := coerceUint64(fmt.Sprintf("%s[%d]", name, i), item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("field %q is not an id list", name)
}

func coerceUint64(name string, v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("field %q is negative", name)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("field %q is negative", name)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n > math.MaxUint64 {
			return 0, fmt.Errorf("field %q is not a whole number: %v", name, n)
		}
		return uint64(n), nil
	case *big.Int:
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return 0, fmt.Errorf("field %q out of uint64 range", name)
		}
		return n.Uint64(), nil
	case string:
		parsed, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %w", name, err)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("field %q has unsupported type %T", name, v)
}
