package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/juicerq/witch/internal/domain"
	"golang.org/x/oauth2"
)

const stateBytes = 16

// OAuthFlow drives the authorization-code login with PKCE.
type OAuthFlow struct {
	states   *AuthStateStore
	provider domain.OAuthProvider
}

func NewOAuthFlow(states *AuthStateStore, provider domain.OAuthProvider) *OAuthFlow {
	return &OAuthFlow{states: states, provider: provider}
}

func (f *OAuthFlow) GetAuthURL(_ context.Context) (domain.LoginURL, error) {
	state, err := randomState()
	if err != nil {
		return domain.LoginURL{}, err
	}
	verifier := oauth2.GenerateVerifier()

	f.states.Put(state, verifier)

	return domain.LoginURL{URL: f.provider.AuthCodeURL(state, verifier), State: state}, nil
}

// ExchangeCode consumes state and trades code for tokens. An unknown,
// expired or already used state fails with domain.ErrInvalidAuthState before
// the token endpoint is contacted.
func (f *OAuthFlow) ExchangeCode(ctx context.Context, code, state string) (domain.TokenGrant, error) {
	verifier, ok := f.states.Take(state)
	if !ok {
		return domain.TokenGrant{}, domain.ErrInvalidAuthState
	}

	grant, err := f.provider.Exchange(ctx, code, verifier)
	if err != nil {
		return domain.TokenGrant{}, err
	}
	return grant, nil
}

func randomState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
