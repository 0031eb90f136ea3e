// Command redis-admin inspects and cleans the Redis state shared by witch
// instances: the poll lease and the cached streamer stats.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/juicerq/witch/internal/adapter/redis"
	"github.com/juicerq/witch/internal/platform/logging"
)

func main() {
	var (
		redisURL   = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		purgeStats = flag.Bool("purge-stats", false, "Delete all cached streamer stats")
		dryRun     = flag.Bool("dry-run", false, "Only count what -purge-stats would delete")
		verbose    = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rdb, err := redis.NewClient(ctx, *redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	// The lease is only read here, so the instance ID never matches.
	holder, err := redis.NewPollLease(rdb, "redis-admin").Holder(ctx)
	if err != nil {
		log.Fatalf("Failed to read poll lease: %v", err)
	}
	if holder == "" {
		slog.Info("No instance holds the poll lease")
	} else {
		slog.Info("Poll lease held", "instance_id", holder)
	}

	if !*purgeStats {
		return
	}

	start := time.Now()
	n, err := redis.PurgeStats(ctx, rdb, *dryRun)
	if err != nil {
		log.Fatalf("Purge failed: %v", err)
	}
	slog.Info("Stats purge complete", "keys", n, "dry_run", *dryRun, "duration_ms", time.Since(start).Milliseconds())
}

// sanitizeURL hides the password in a Redis URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
