package chainsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farmtrace/provenance/common/models"
	redisw "github.com/farmtrace/provenance/common/redis"
)

// ChannelPrefix is the pub/sub namespace for live event fan-out. The full
// channel is ChannelPrefix + kind, so feed consumers can PSUBSCRIBE to
// "provenance:events:*" or to a single kind.
const ChannelPrefix = "provenance:events:"

const sinkTimeout = 5 * time.Second

// RedisSink mirrors recorded events out of process: one pub/sub publish
// per kind for live feeds, plus an append to a capped stream that durable
// consumers read with consumer groups. Register it as a wildcard observer.
type RedisSink struct {
	client *redisw.Client
	stream string
	maxLen int64
}

// NewRedisSink creates a sink targeting the given stream.
func NewRedisSink(client *redisw.Client, stream string, maxLen int64) *RedisSink {
	return &RedisSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Observe satisfies the Observer signature. Both writes ride one pipeline
// round trip; failures surface as an error for the synchronizer to log,
// never affecting history or other observers.
func (s *RedisSink) Observe(event models.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	pipe := s.client.NewPipeline()
	pipe.PublishEvent(ctx, ChannelPrefix+string(event.Kind), string(payload))
	pipe.AddToStream(ctx, s.stream, s.maxLen, map[string]interface{}{
		"kind":         string(event.Kind),
		"sequence_key": event.SequenceKey.String(),
		"event":        string(payload),
	})
	return pipe.Exec(ctx)
}
