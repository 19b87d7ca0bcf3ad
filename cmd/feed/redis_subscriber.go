package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/farmtrace/provenance/common/chainsync"
	"github.com/farmtrace/provenance/common/logger"
	"github.com/farmtrace/provenance/common/models"
	"github.com/farmtrace/provenance/common/redis"
)

// RedisSubscriber listens to the verifier's pub/sub fan-out and forwards
// events to the Hub
type RedisSubscriber struct {
	redis *redis.Client
	hub   *Hub
	log   *logger.Logger
}

// NewRedisSubscriber creates a new RedisSubscriber instance
func NewRedisSubscriber(redisClient *redis.Client, hub *Hub, log *logger.Logger) *RedisSubscriber {
	return &RedisSubscriber{
		redis: redisClient,
		hub:   hub,
		log:   log,
	}
}

// Start listens until ctx is cancelled. The verifier publishes one channel
// per event kind under a shared prefix, so a single pattern subscription
// covers the whole feed.
func (s *RedisSubscriber) Start(ctx context.Context) error {
	pattern := chainsync.ChannelPrefix + "*"

	pubsub := s.redis.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	// Wait for confirmation that the subscription was accepted
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	s.log.Info("event subscription confirmed", "pattern", pattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("event subscriber stopping")
			return nil

		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}

			// Channel format: <prefix><kind>, e.g. provenance:events:BatchPurchased
			kind := models.EventKind(strings.TrimPrefix(msg.Channel, chainsync.ChannelPrefix))
			if !models.KnownKind(kind) {
				s.log.Warn("event on unexpected channel", "channel", msg.Channel)
				continue
			}

			s.log.Debug("event received", "kind", kind, "bytes", len(msg.Payload))

			select {
			case s.hub.broadcast <- &Message{Kind: kind, Data: []byte(msg.Payload)}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
