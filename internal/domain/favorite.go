package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Favorite struct {
	ID           uuid.UUID `json:"id"`
	ChannelID    string    `json:"streamer_id"`
	ChannelLogin string    `json:"streamer_login"`
	ChannelName  string    `json:"streamer_name"`
	Notify       bool      `json:"notify"`
	CreatedAt    time.Time `json:"created_at"`
}

type FavoriteRepository interface {
	List(ctx context.Context) ([]Favorite, error)
	ListNotify(ctx context.Context) ([]Favorite, error)
	// Toggle adds the channel when absent and removes it when present.
	// It reports whether the channel is a favorite afterwards.
	Toggle(ctx context.Context, channelID, channelLogin, channelName string) (bool, error)
	SetNotify(ctx context.Context, channelID string, notify bool) (*Favorite, error)
}
