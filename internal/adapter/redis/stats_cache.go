package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/juicerq/witch/internal/adapter/metrics"
	"github.com/juicerq/witch/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	layerMemory = "memory"
	layerRedis  = "redis"
)

// StatsCache keeps computed streamer stats in process memory and, when a
// Redis client is configured, in Redis. Concurrent misses for one channel are
// collapsed into a single load. Redis failures are logged and treated as
// misses.
//
// Every invalidation bumps a generation. A load only stores its result when
// the generation it started under is still current, so a load racing a
// ledger write cannot put pre-write stats back into the cache.
type StatsCache struct {
	rdb     goredis.Cmdable
	mem     *memoryCache
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.CacheMetrics

	genMu sync.Mutex
	// epoch is bumped when everything is invalidated, gens per channel.
	epoch uint64
	gens  map[string]uint64
}

type cacheGen struct {
	epoch, channel uint64
}

// flightKey keys singleflight by generation, so a Get after an invalidation
// never joins a load that started before it.
func (g cacheGen) flightKey(channelID string) string {
	return fmt.Sprintf("%d.%d:%s", g.epoch, g.channel, channelID)
}

var _ domain.StatsCache = (*StatsCache)(nil)

// NewStatsCache returns a cache with entries living for ttl. rdb may be nil
// for a memory-only cache.
func NewStatsCache(rdb goredis.Cmdable, ttl time.Duration, clock clockwork.Clock, m *metrics.CacheMetrics) *StatsCache {
	return &StatsCache{
		rdb:     rdb,
		mem:     newMemoryCache(ttl, clock),
		ttl:     ttl,
		metrics: m,
		gens:    make(map[string]uint64),
	}
}

// StartEvictionTimer periodically drops expired in-memory entries. The
// returned function stops it.
func (c *StatsCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.mem.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired stats cache entries", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (c *StatsCache) Get(ctx context.Context, channelID string, load func(ctx context.Context) (domain.StreamerStats, error)) (domain.StreamerStats, error) {
	if stats, ok := c.mem.get(channelID); ok {
		c.hit(layerMemory)
		return stats, nil
	}

	gen := c.generation(channelID)
	v, err, _ := c.group.Do(gen.flightKey(channelID), func() (any, error) {
		if stats, ok := c.mem.get(channelID); ok {
			return stats, nil
		}
		if stats, ok := c.getCached(ctx, channelID); ok {
			c.hit(layerRedis)
			c.storeLocal(channelID, gen, stats)
			return stats, nil
		}

		if c.metrics != nil {
			c.metrics.Misses.Inc()
		}
		stats, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if !c.storeLocal(channelID, gen, stats) {
			slog.DebugContext(ctx, "Stats invalidated during load, not caching", "channel_id", channelID)
			return stats, nil
		}
		c.writeCache(ctx, channelID, stats)
		// An invalidation between storeLocal and the SET may have deleted the
		// key before we wrote it.
		if c.generation(channelID) != gen {
			c.deleteCached(ctx, channelID)
		}
		return stats, nil
	})
	if err != nil {
		return domain.StreamerStats{}, fmt.Errorf("stats lookup for %s failed: %w", channelID, err)
	}
	return v.(domain.StreamerStats), nil
}

// Invalidate drops the given channels from both layers and tells other
// instances to drop them from their memory layer. With no ids it clears every
// memory layer; Redis entries then age out by TTL.
func (c *StatsCache) Invalidate(ctx context.Context, channelIDs ...string) error {
	if c.metrics != nil {
		c.metrics.Invalidations.Inc()
	}

	c.dropLocal(channelIDs)

	if c.rdb == nil {
		return nil
	}

	if len(channelIDs) > 0 {
		keys := make([]string, 0, len(channelIDs))
		for _, id := range channelIDs {
			keys = append(keys, statsCacheKey(id))
		}
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.redisError("del")
			return fmt.Errorf("failed to invalidate stats cache: %w", err)
		}
	}

	if err := publishStatsInvalidation(ctx, c.rdb, channelIDs); err != nil {
		c.redisError("publish")
		slog.WarnContext(ctx, "Failed to broadcast stats invalidation", "channels", len(channelIDs), "error", err)
	}
	return nil
}

func (c *StatsCache) generation(channelID string) cacheGen {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return cacheGen{epoch: c.epoch, channel: c.gens[channelID]}
}

// storeLocal sets the memory entry unless channelID was invalidated since gen
// was taken.
func (c *StatsCache) storeLocal(channelID string, gen cacheGen, stats domain.StreamerStats) bool {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.epoch != gen.epoch || c.gens[channelID] != gen.channel {
		return false
	}
	c.mem.set(channelID, stats)
	return true
}

func (c *StatsCache) dropLocal(channelIDs []string) {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	if len(channelIDs) == 0 {
		c.epoch++
		c.mem.clear()
		return
	}
	for _, id := range channelIDs {
		c.gens[id]++
		c.mem.invalidate(id)
	}
}

func (c *StatsCache) getCached(ctx context.Context, channelID string) (domain.StreamerStats, bool) {
	if c.rdb == nil {
		return domain.StreamerStats{}, false
	}

	data, err := c.rdb.Get(ctx, statsCacheKey(channelID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.redisError("get")
			slog.Warn("Redis stats cache GET failed", "channel_id", channelID, "error", err)
		}
		return domain.StreamerStats{}, false
	}

	var stats domain.StreamerStats
	if err := json.Unmarshal(data, &stats); err != nil {
		slog.Warn("Failed to unmarshal cached stats", "channel_id", channelID, "error", err)
		return domain.StreamerStats{}, false
	}
	return stats, true
}

func (c *StatsCache) writeCache(ctx context.Context, channelID string, stats domain.StreamerStats) {
	if c.rdb == nil {
		return
	}

	encoded, err := json.Marshal(stats)
	if err != nil {
		slog.Warn("Failed to marshal stats for Redis cache", "channel_id", channelID, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, statsCacheKey(channelID), encoded, c.ttl).Err(); err != nil {
		c.redisError("set")
		slog.Warn("Failed to populate Redis stats cache", "channel_id", channelID, "error", err)
	}
}

func (c *StatsCache) deleteCached(ctx context.Context, channelID string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, statsCacheKey(channelID)).Err(); err != nil {
		c.redisError("del")
		slog.Warn("Failed to drop stale Redis stats entry", "channel_id", channelID, "error", err)
	}
}

func (c *StatsCache) hit(layer string) {
	if c.metrics != nil {
		c.metrics.Hits.WithLabelValues(layer).Inc()
	}
}

func (c *StatsCache) redisError(op string) {
	if c.metrics != nil {
		c.metrics.RedisErrors.WithLabelValues(op).Inc()
	}
}

const (
	statsKeyPrefix = "witch:stats:"
	purgeScanCount = 100
)

func statsCacheKey(channelID string) string {
	return statsKeyPrefix + channelID
}

// PurgeStats deletes every cached stats entry in Redis and returns how many
// keys matched. With dryRun it only counts. Running processes keep their
// in-memory layer until it expires.
func PurgeStats(ctx context.Context, rdb goredis.Cmdable, dryRun bool) (int, error) {
	var (
		cursor uint64
		purged int
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, statsKeyPrefix+"*", purgeScanCount).Result()
		if err != nil {
			return purged, fmt.Errorf("failed to scan stats keys: %w", err)
		}

		if len(keys) > 0 && !dryRun {
			if err := rdb.Unlink(ctx, keys...).Err(); err != nil {
				return purged, fmt.Errorf("failed to delete stats keys: %w", err)
			}
		}
		purged += len(keys)

		cursor = next
		if cursor == 0 {
			return purged, nil
		}
	}
}

// memoryCache is the in-process layer with TTL-based expiry.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type memoryCacheEntry struct {
	stats     domain.StreamerStats
	expiresAt time.Time
}

func newMemoryCache(ttl time.Duration, clock clockwork.Clock) *memoryCache {
	return &memoryCache{
		entries: make(map[string]memoryCacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *memoryCache) get(channelID string) (domain.StreamerStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[channelID]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return domain.StreamerStats{}, false
	}
	return entry.stats, true
}

func (c *memoryCache) set(channelID string, stats domain.StreamerStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[channelID] = memoryCacheEntry{
		stats:     stats,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

func (c *memoryCache) invalidate(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, channelID)
}

func (c *memoryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *memoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
