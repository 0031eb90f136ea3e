package domain

import (
	"context"
	"time"
)

// FavoriteLive is emitted once per transition to live of a favorite with
// notifications enabled.
type FavoriteLive struct {
	UserID    string    `json:"user_id"`
	UserLogin string    `json:"user_login"`
	UserName  string    `json:"user_name"`
	GameName  *string   `json:"game_name"`
	StartedAt time.Time `json:"started_at"`
}

func FavoriteLiveFromStream(stream LiveStream) FavoriteLive {
	ev := FavoriteLive{
		UserID:    stream.UserID,
		UserLogin: stream.UserLogin,
		UserName:  stream.UserName,
		StartedAt: stream.StartedAt,
	}
	if stream.GameName != "" {
		game := stream.GameName
		ev.GameName = &game
	}
	return ev
}

type EventPublisher interface {
	PublishFavoriteLive(ctx context.Context, event FavoriteLive) error
}
