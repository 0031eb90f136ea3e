package twitch

import (
	"context"
	"net/http"

	"github.com/juicerq/witch/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// CredentialChecker validates an application's id and secret by requesting an
// app access token. The token itself is discarded.
type CredentialChecker struct {
	tokenURL   string
	httpClient *http.Client
}

var _ domain.CredentialValidator = (*CredentialChecker)(nil)

func NewCredentialChecker(tokenURL string) *CredentialChecker {
	return &CredentialChecker{
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: oauthTimeout},
	}
}

func (c *CredentialChecker) ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) error {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     c.tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	if _, err := cfg.Token(ctx); err != nil {
		return upstreamError(err)
	}
	return nil
}
