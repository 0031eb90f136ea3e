package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StreamSession is one observed broadcast of a channel. StartedAt comes from
// the platform and never changes; EndedAt is nil while the session is open
// and is written at most once.
type StreamSession struct {
	ID           uuid.UUID
	ChannelID    string
	ChannelLogin string
	StartedAt    time.Time
	EndedAt      *time.Time
	GameName     *string
	CreatedAt    time.Time
}

func (s StreamSession) Open() bool { return s.EndedAt == nil }

// DurationMinutes is the rounded session length, or nil for open sessions.
func (s StreamSession) DurationMinutes() *int {
	if s.EndedAt == nil {
		return nil
	}
	minutes := roundMinutes(s.EndedAt.Sub(s.StartedAt))
	return &minutes
}

// HistorySummary is the per-channel aggregate shown next to followed channels.
type HistorySummary struct {
	LastOnline  *time.Time
	StreamCount int
}

type SessionRepository interface {
	ListOpen(ctx context.Context) ([]StreamSession, error)
	Insert(ctx context.Context, session StreamSession) error
	// Close sets ended_at on an open session. Closing an already closed
	// session is a no-op.
	Close(ctx context.Context, id uuid.UUID, endedAt time.Time) error
	ListByChannel(ctx context.Context, channelID string) ([]StreamSession, error)
	History(ctx context.Context, channelID string, limit int) ([]StreamSession, error)
	HistorySummaries(ctx context.Context, channelIDs []string) (map[string]HistorySummary, error)
}
