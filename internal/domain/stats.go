package domain

import (
	"context"
	"math"
	"time"
)

// StreamerStats aggregates the ledger of one channel. A channel without
// sessions has TotalSessions 0 and every other field empty.
type StreamerStats struct {
	LastOnline       *time.Time `json:"lastOnline"`
	TotalSessions    int        `json:"totalSessions"`
	AverageStartHour *int       `json:"averageStartHour"`
	CommonDays       []string   `json:"commonDays"`
	AverageDuration  *int       `json:"averageDuration"`
}

func EmptyStats() StreamerStats {
	return StreamerStats{CommonDays: []string{}}
}

// StatsCache stores computed stats per channel.
type StatsCache interface {
	Get(ctx context.Context, channelID string, load func(ctx context.Context) (StreamerStats, error)) (StreamerStats, error)
	Invalidate(ctx context.Context, channelIDs ...string) error
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
