package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenRecord is the single delegated-access token set of the logged-in user.
type TokenRecord struct {
	ID           uuid.UUID
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

func (t *TokenRecord) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// TokenGrant is what the token endpoint hands back on exchange or refresh.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type TokenRepository interface {
	// Get returns the stored token or ErrNotAuthenticated when none exists.
	Get(ctx context.Context) (*TokenRecord, error)
	// Replace removes every stored token and stores record in its place.
	Replace(ctx context.Context, record TokenRecord) error
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	DeleteAll(ctx context.Context) error
}
