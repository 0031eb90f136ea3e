package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/juicerq/witch/internal/domain"
)

// TokenManager hands out a usable access token, refreshing it when the stored
// one has expired. Concurrent callers may both refresh; the last write wins.
type TokenManager struct {
	tokens domain.TokenRepository
	oauth  domain.OAuthProvider
	clock  clockwork.Clock
}

func NewTokenManager(tokens domain.TokenRepository, oauth domain.OAuthProvider, clock clockwork.Clock) *TokenManager {
	return &TokenManager{tokens: tokens, oauth: oauth, clock: clock}
}

// GetValidToken returns nil, nil when nobody is logged in. Refresh failures
// come back as *domain.TokenRefreshError; a revoked refresh token also
// removes the stored row.
func (m *TokenManager) GetValidToken(ctx context.Context) (*domain.TokenRecord, error) {
	rec, err := m.tokens.Get(ctx)
	if errors.Is(err, domain.ErrNotAuthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if !rec.Expired(m.clock.Now()) {
		return rec, nil
	}

	grant, err := m.oauth.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		refreshErr, ok := errors.AsType[*domain.TokenRefreshError](err)
		if !ok {
			refreshErr = &domain.TokenRefreshError{Err: err}
		}
		if refreshErr.Revoked {
			slog.WarnContext(ctx, "Refresh token rejected, clearing stored token", "user_id", rec.UserID, "error", err)
			if delErr := m.tokens.DeleteAll(ctx); delErr != nil {
				slog.ErrorContext(ctx, "Failed to clear revoked token", "user_id", rec.UserID, "error", delErr)
			}
		}
		return nil, refreshErr
	}

	refreshToken := grant.RefreshToken
	if refreshToken == "" {
		refreshToken = rec.RefreshToken
	}
	expiresAt := m.clock.Now().Add(grant.ExpiresIn)

	if err := m.tokens.UpdateTokens(ctx, rec.ID, grant.AccessToken, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refreshed token: %w", err)
	}
	slog.InfoContext(ctx, "Access token refreshed", "user_id", rec.UserID, "expires_at", expiresAt)

	refreshed := *rec
	refreshed.AccessToken = grant.AccessToken
	refreshed.RefreshToken = refreshToken
	refreshed.ExpiresAt = expiresAt
	return &refreshed, nil
}
