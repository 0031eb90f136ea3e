package domain

import (
	"context"
	"time"
)

type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

type FollowedChannel struct {
	BroadcasterID    string
	BroadcasterLogin string
	BroadcasterName  string
}

type LiveStream struct {
	UserID       string
	UserLogin    string
	UserName     string
	GameName     string
	ViewerCount  int
	StartedAt    time.Time
	ThumbnailURL string
}

// TwitchAPI is the subset of Helix the service reads with a user token.
type TwitchAPI interface {
	GetCurrentUser(ctx context.Context, accessToken string) (User, error)
	GetUsersByIDs(ctx context.Context, accessToken string, ids []string) ([]User, error)
	GetFollowedChannels(ctx context.Context, accessToken, userID string) ([]FollowedChannel, error)
	GetLiveStreams(ctx context.Context, accessToken string, ids []string) ([]LiveStream, error)
}

// OAuthProvider talks to the Twitch authorization server.
type OAuthProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (TokenGrant, error)
	Refresh(ctx context.Context, refreshToken string) (TokenGrant, error)
}

// CredentialValidator checks an application's client id and secret.
type CredentialValidator interface {
	ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) error
}
