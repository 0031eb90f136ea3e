package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/juicerq/witch/internal/domain"
	"golang.org/x/oauth2"
)

const (
	scopeReadFollows = "user:read:follows"
	oauthTimeout     = 10 * time.Second
)

// OAuthConfig describes the registered Twitch application.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	// UsePKCE drops the client secret from token requests; the code verifier
	// alone proves possession.
	UsePKCE bool
}

// OAuthClient runs the authorization-code flow with PKCE against id.twitch.tv.
type OAuthClient struct {
	config     *oauth2.Config
	httpClient *http.Client
}

var _ domain.OAuthProvider = (*OAuthClient)(nil)

func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	secret := cfg.ClientSecret
	if cfg.UsePKCE {
		secret = ""
	}

	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: secret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{scopeReadFollows},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: oauthTimeout},
	}
}

func (c *OAuthClient) AuthCodeURL(state, verifier string) string {
	return c.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (c *OAuthClient) Exchange(ctx context.Context, code, verifier string) (domain.TokenGrant, error) {
	tok, err := c.config.Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return domain.TokenGrant{}, fmt.Errorf("failed to exchange code: %w", upstreamError(err))
	}
	return grantFromToken(tok), nil
}

// Refresh trades a refresh token for a new pair. Every failure is a
// *domain.TokenRefreshError; Revoked is set when Twitch answered 400 or 401.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (domain.TokenGrant, error) {
	src := c.config.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		revoked := false
		if rErr, ok := errors.AsType[*oauth2.RetrieveError](err); ok && rErr.Response != nil {
			revoked = rErr.Response.StatusCode == http.StatusBadRequest || rErr.Response.StatusCode == http.StatusUnauthorized
		}
		return domain.TokenGrant{}, &domain.TokenRefreshError{Revoked: revoked, Err: upstreamError(err)}
	}
	return grantFromToken(tok), nil
}

func (c *OAuthClient) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func grantFromToken(tok *oauth2.Token) domain.TokenGrant {
	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 && !tok.Expiry.IsZero() {
		expiresIn = time.Until(tok.Expiry)
	}
	return domain.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
	}
}

// upstreamError turns a token endpoint rejection into *domain.UpstreamAPIError
// and passes transport errors through.
func upstreamError(err error) error {
	rErr, ok := errors.AsType[*oauth2.RetrieveError](err)
	if !ok || rErr.Response == nil {
		return err
	}
	return &domain.UpstreamAPIError{
		Endpoint: "/oauth2/token",
		Status:   rErr.Response.StatusCode,
		Body:     string(rErr.Body),
	}
}
