package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

const (
	statsInvalidationChannel = "witch:stats:invalidate"
	invalidateAllPayload     = "*"
)

// StatsInvalidationSubscriber applies stats invalidations published by any
// instance, including this one, to the local memory layer.
type StatsInvalidationSubscriber struct {
	rdb   *goredis.Client
	cache *StatsCache
}

func NewStatsInvalidationSubscriber(rdb *goredis.Client, cache *StatsCache) *StatsInvalidationSubscriber {
	return &StatsInvalidationSubscriber{rdb: rdb, cache: cache}
}

// Start blocks until ctx is done or the subscription closes.
func (s *StatsInvalidationSubscriber) Start(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, statsInvalidationChannel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleInvalidation(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *StatsInvalidationSubscriber) handleInvalidation(payload string) {
	if payload == "" {
		slog.Warn("Empty stats invalidation message")
		return
	}

	if payload == invalidateAllPayload {
		s.cache.dropLocal(nil)
		slog.Debug("Stats cache cleared via pub/sub")
		return
	}

	ids := strings.Split(payload, ",")
	s.cache.dropLocal(ids)
	slog.Debug("Stats cache invalidated via pub/sub", "channels", len(ids))
}

func publishStatsInvalidation(ctx context.Context, rdb goredis.Cmdable, channelIDs []string) error {
	payload := invalidateAllPayload
	if len(channelIDs) > 0 {
		payload = strings.Join(channelIDs, ",")
	}
	if err := rdb.Publish(ctx, statsInvalidationChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish stats invalidation: %w", err)
	}
	return nil
}
