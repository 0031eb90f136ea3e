package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidAuthState = errors.New("invalid or expired state parameter")
	ErrFavoriteNotFound = errors.New("favorite not found")
	ErrUserNotFound     = errors.New("user not found")

	// ErrTwitchNotConfigured means the server runs without Twitch app
	// credentials and only the setup API is usable.
	ErrTwitchNotConfigured = errors.New("twitch credentials are not configured")
)

// TokenRefreshError is returned when the token endpoint rejects a refresh.
// Revoked is true when Twitch answered 400 or 401, meaning the refresh token
// is no longer usable and the user has to log in again.
type TokenRefreshError struct {
	Revoked bool
	Err     error
}

func (e *TokenRefreshError) Error() string {
	if e.Revoked {
		return fmt.Sprintf("token refresh rejected (revoked): %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// UpstreamAPIError is a non-2xx answer from the Twitch API.
type UpstreamAPIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("twitch api %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}
