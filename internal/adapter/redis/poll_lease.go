package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	pollLeaseKey = "witch:poller:leader"
	// minPollLeaseTTL covers the 60s fallback delay after a failed run.
	minPollLeaseTTL = 90 * time.Second
)

// Renew and release only touch the key while it still holds our instance ID.
var (
	renewScript = goredis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
	releaseScript = goredis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
)

// PollLease elects one poller among instances sharing a Redis. Every Allow
// sets the TTL to twice the caller's next poll delay, so a leader that keeps
// polling keeps the lease whatever its interval.
type PollLease struct {
	rdb        goredis.Cmdable
	instanceID string
	// leader is written by the poller goroutine and by Release on shutdown.
	leader atomic.Bool
}

func NewPollLease(rdb goredis.Cmdable, instanceID string) *PollLease {
	return &PollLease{rdb: rdb, instanceID: instanceID}
}

// LeaseTTL is how long a lease taken or renewed before a poll delay of
// interval stays valid.
func LeaseTTL(interval time.Duration) time.Duration {
	return max(minPollLeaseTTL, 2*interval)
}

// Allow reports whether this instance should poll now, renewing the lease
// when it already holds it and trying to take it otherwise. interval is the
// delay until the caller's next Allow.
func (l *PollLease) Allow(ctx context.Context, interval time.Duration) (bool, error) {
	ttl := LeaseTTL(interval)
	if l.leader.Load() {
		renewed, err := renewScript.Run(ctx, l.rdb, []string{pollLeaseKey}, l.instanceID, ttl.Milliseconds()).Int()
		if err != nil {
			return false, fmt.Errorf("failed to renew poll lease: %w", err)
		}
		if renewed == 1 {
			return true, nil
		}
		slog.WarnContext(ctx, "Poll lease lost", "instance_id", l.instanceID)
		l.leader.Store(false)
	}

	acquired, err := l.rdb.SetNX(ctx, pollLeaseKey, l.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire poll lease: %w", err)
	}
	if acquired {
		slog.InfoContext(ctx, "Poll lease acquired", "instance_id", l.instanceID, "ttl", ttl)
	}
	l.leader.Store(acquired)
	return acquired, nil
}

// Release gives the lease up on shutdown so another instance can take over
// without waiting for the TTL.
func (l *PollLease) Release(ctx context.Context) error {
	if !l.leader.Swap(false) {
		return nil
	}

	err := releaseScript.Run(ctx, l.rdb, []string{pollLeaseKey}, l.instanceID).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("failed to release poll lease: %w", err)
	}
	return nil
}

// Holder returns the instance ID currently holding the lease, or "" when
// nobody does.
func (l *PollLease) Holder(ctx context.Context) (string, error) {
	id, err := l.rdb.Get(ctx, pollLeaseKey).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read poll lease: %w", err)
	}
	return id, nil
}
