package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/farmtrace/provenance/common/lifecycle"
	"github.com/farmtrace/provenance/common/models"
	redisw "github.com/farmtrace/provenance/common/redis"

	vmodels "github.com/farmtrace/provenance/cmd/verifier/models"
)

// RecorderGroup is the consumer group the recorder joins on the event
// stream. One group, any number of replica consumers.
const RecorderGroup = "anchor-recorder"

// AnchorRecorder consumes the durable event stream and materializes the
// off-chain projections: crop and batch rows, plus the verified flag on
// anchors once the anchored transaction shows up. Delivery is
// at-least-once; every write is an idempotent upsert or a keyed update,
// so redeliveries are harmless.
type AnchorRecorder struct {
	redis    *redisw.Client
	crops    CropStore
	batches  BatchStore
	anchors  AnchorStore
	logger   Logger
	stream   string
	consumer string
}

// NewAnchorRecorder creates a recorder reading the given stream.
func NewAnchorRecorder(client *redisw.Client, crops CropStore, batches BatchStore, anchors AnchorStore, logger Logger, stream string) *AnchorRecorder {
	return &AnchorRecorder{
		redis:    client,
		crops:    crops,
		batches:  batches,
		anchors:  anchors,
		logger:   logger,
		stream:   stream,
		consumer: fmt.Sprintf("recorder_%d", time.Now().Unix()),
	}
}

// Start consumes the stream until the context is cancelled.
func (c *AnchorRecorder) Start(ctx context.Context) error {
	c.logger.Info("starting anchor recorder",
		"stream", c.stream,
		"group", RecorderGroup,
		"consumer", c.consumer,
	)

	if err := c.redis.EnsureGroup(ctx, c.stream, RecorderGroup); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("anchor recorder stopping")
			return nil
		default:
			if err := c.processNext(ctx); err != nil {
				c.logger.Error("failed to process stream entry", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNext reads and handles one stream entry. Handling failures are
// logged and the entry acknowledged anyway: the stream is a projection
// feed, not a work queue, and a poisoned entry must not wedge the group.
func (c *AnchorRecorder) processNext(ctx context.Context) error {
	messages, err := c.redis.ReadGroup(ctx, c.stream, RecorderGroup, c.consumer, 1, 5*time.Second)
	if err != nil {
		return err
	}

	for _, message := range messages {
		if err := c.handleMessage(ctx, message); err != nil {
			c.logger.Error("failed to handle event", "message_id", message.ID, "error", err)
		}
		if err := c.redis.Ack(ctx, c.stream, RecorderGroup, message.ID); err != nil {
			c.logger.Error("failed to ack event", "message_id", message.ID, "error", err)
		}
	}
	return nil
}

// handleMessage applies one recorded event to the projections.
func (c *AnchorRecorder) handleMessage(ctx context.Context, message redis.XMessage) error {
	payload, ok := message.Values["event"].(string)
	if !ok {
		return fmt.Errorf("stream entry missing event field")
	}

	var event models.DomainEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("malformed event: %w", err)
	}

	c.logger.Debug("recording event",
		"kind", event.Kind,
		"sequence_key", event.SequenceKey,
	)

	switch event.Kind {
	case models.EventProductCreated:
		return c.recordProductCreated(ctx, &event)
	case models.EventOwnershipTransferred:
		p := event.OwnershipTransferred
		return c.crops.UpdateHolder(ctx, int64(p.ProductID), string(p.To))
	case models.EventStatusUpdated:
		return c.recordStatusUpdated(ctx, &event)
	case models.EventBatchCreated:
		return c.recordBatchCreated(ctx, &event)
	case models.EventBatchLocationUpdated:
		p := event.BatchLocationUpdated
		return c.batches.UpdateLocation(ctx, int64(p.BatchID), p.Location)
	case models.EventBatchPurchased:
		p := event.BatchPurchased
		return c.batches.RecordPurchase(ctx, int64(p.BatchID), string(p.Buyer), int64(p.PaidMinorUnits))
	}
	return fmt.Errorf("unhandled event kind %s", event.Kind)
}

func (c *AnchorRecorder) recordProductCreated(ctx context.Context, event *models.DomainEvent) error {
	p := event.ProductCreated
	return c.crops.Upsert(ctx, &vmodels.Crop{
		ProductID:       int64(p.ProductID),
		Name:            p.Name,
		Originator:      string(p.Originator),
		CurrentHolder:   string(p.Originator),
		PriceMinorUnits: int64(p.PriceMinorUnits),
		StatusCode:      lifecycle.StatusHarvested,
		CreatedAt:       occurredOrNow(event),
	})
}

func (c *AnchorRecorder) recordStatusUpdated(ctx context.Context, event *models.DomainEvent) error {
	p := event.StatusUpdated
	switch p.Subject {
	case models.KindProduct:
		return c.crops.UpdateStatus(ctx, int64(p.SubjectID), int16(p.StatusCode))
	case models.KindBatch:
		return c.batches.UpdateStatus(ctx, int64(p.SubjectID), int16(p.StatusCode))
	}
	return fmt.Errorf("status update for unknown subject %q", p.Subject)
}

// recordBatchCreated materializes the batch row and flips any anchor
// waiting on this transaction to verified.
func (c *AnchorRecorder) recordBatchCreated(ctx context.Context, event *models.DomainEvent) error {
	p := event.BatchCreated

	productIDs := make([]int64, len(p.ProductIDs))
	for i, id := range p.ProductIDs {
		productIDs[i] = int64(id)
	}
	err := c.batches.Upsert(ctx, &vmodels.BatchRecord{
		BatchID:    int64(p.BatchID),
		Handler:    string(p.Handler),
		ProductIDs: productIDs,
		Location:   p.Location,
		StatusCode: lifecycle.StatusPacked,
		TxRef:      string(event.TransactionRef),
		CreatedAt:  occurredOrNow(event),
	})
	if err != nil {
		return err
	}

	return c.anchors.MarkVerified(ctx, int64(p.BatchID), string(event.TransactionRef))
}

// occurredOrNow falls back to wall time when the provider could not
// supply a block timestamp. The upsert never overwrites created_at, so
// the fallback only sticks for rows this event creates.
func occurredOrNow(event *models.DomainEvent) time.Time {
	if event.OccurredAt.IsZero() {
		return time.Now().UTC()
	}
	return event.OccurredAt
}
