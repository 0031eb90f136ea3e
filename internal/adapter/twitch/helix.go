package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/juicerq/witch/internal/domain"
	"github.com/juicerq/witch/internal/platform/retry"
	"github.com/nicklaw5/helix/v2"
	"golang.org/x/time/rate"
)

const (
	helixBatchSize     = 100
	helixRetryAttempts = 3
	helixRetryBackoff  = 500 * time.Millisecond
	helixMaxBackoff    = 5 * time.Second
)

// HelixClient reads the Helix API on behalf of the logged-in user. The
// underlying helix.Client holds a single user token, so calls are serialized.
type HelixClient struct {
	mu      sync.Mutex
	client  *helix.Client
	limiter *rate.Limiter
	policy  retry.Policy
}

var _ domain.TwitchAPI = (*HelixClient)(nil)

// NewHelixClient builds a client against baseURL. requestsPerSecond caps the
// outgoing request rate; zero or less disables the cap.
func NewHelixClient(clientID, baseURL string, requestsPerSecond float64) (*HelixClient, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:   clientID,
		APIBaseURL: baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &HelixClient{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		policy: retry.Policy{
			MaxAttempts:    helixRetryAttempts,
			InitialBackoff: helixRetryBackoff,
			MaxBackoff:     helixMaxBackoff,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Retrying Helix request", "attempt", attempt, "backoff", backoff, "error", err)
			},
		},
	}, nil
}

func (hc *HelixClient) GetCurrentUser(ctx context.Context, accessToken string) (domain.User, error) {
	users, err := hc.getUsers(ctx, accessToken, nil)
	if err != nil {
		return domain.User{}, err
	}
	if len(users) == 0 {
		return domain.User{}, domain.ErrUserNotFound
	}
	return users[0], nil
}

func (hc *HelixClient) GetUsersByIDs(ctx context.Context, accessToken string, ids []string) ([]domain.User, error) {
	var users []domain.User
	for batch := range slices.Chunk(ids, helixBatchSize) {
		page, err := hc.getUsers(ctx, accessToken, batch)
		if err != nil {
			return nil, err
		}
		users = append(users, page...)
	}
	return users, nil
}

func (hc *HelixClient) getUsers(ctx context.Context, accessToken string, ids []string) ([]domain.User, error) {
	resp, err := call(ctx, hc, accessToken, "/users", func(c *helix.Client) (*helix.UsersResponse, helix.ResponseCommon, error) {
		resp, err := c.GetUsers(&helix.UsersParams{IDs: ids})
		if resp == nil {
			return nil, helix.ResponseCommon{}, err
		}
		return resp, resp.ResponseCommon, err
	})
	if err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(resp.Data.Users))
	for _, u := range resp.Data.Users {
		users = append(users, domain.User{
			ID:              u.ID,
			Login:           u.Login,
			DisplayName:     u.DisplayName,
			ProfileImageURL: u.ProfileImageURL,
		})
	}
	return users, nil
}

// GetFollowedChannels follows the pagination cursor until Twitch stops
// returning one.
func (hc *HelixClient) GetFollowedChannels(ctx context.Context, accessToken, userID string) ([]domain.FollowedChannel, error) {
	var (
		channels []domain.FollowedChannel
		cursor   string
	)

	for {
		resp, err := call(ctx, hc, accessToken, "/channels/followed", func(c *helix.Client) (*helix.GetFollowedChannelResponse, helix.ResponseCommon, error) {
			resp, err := c.GetFollowedChannels(&helix.GetFollowedChannelParams{
				UserID: userID,
				First:  helixBatchSize,
				After:  cursor,
			})
			if resp == nil {
				return nil, helix.ResponseCommon{}, err
			}
			return resp, resp.ResponseCommon, err
		})
		if err != nil {
			return nil, err
		}

		for _, ch := range resp.Data.FollowedChannels {
			channels = append(channels, domain.FollowedChannel{
				BroadcasterID:    ch.BroadcasterID,
				BroadcasterLogin: ch.BroadcaserLogin, // helix v2.30.0 field is spelled BroadcaserLogin
				BroadcasterName:  ch.BroadcasterName,
			})
		}

		cursor = resp.Data.Pagination.Cursor
		if cursor == "" {
			return channels, nil
		}
	}
}

// GetLiveStreams queries /streams in batches of 100 ids and returns only the
// channels that are currently live.
func (hc *HelixClient) GetLiveStreams(ctx context.Context, accessToken string, ids []string) ([]domain.LiveStream, error) {
	var streams []domain.LiveStream
	for batch := range slices.Chunk(ids, helixBatchSize) {
		resp, err := call(ctx, hc, accessToken, "/streams", func(c *helix.Client) (*helix.StreamsResponse, helix.ResponseCommon, error) {
			resp, err := c.GetStreams(&helix.StreamsParams{UserIDs: batch, First: helixBatchSize})
			if resp == nil {
				return nil, helix.ResponseCommon{}, err
			}
			return resp, resp.ResponseCommon, err
		})
		if err != nil {
			return nil, err
		}

		for _, s := range resp.Data.Streams {
			streams = append(streams, domain.LiveStream{
				UserID:       s.UserID,
				UserLogin:    s.UserLogin,
				UserName:     s.UserName,
				GameName:     s.GameName,
				ViewerCount:  s.ViewerCount,
				StartedAt:    s.StartedAt,
				ThumbnailURL: s.ThumbnailURL,
			})
		}
	}
	return streams, nil
}

// call rate-limits, retries transient failures and turns non-2xx answers
// into *domain.UpstreamAPIError.
func call[T any](ctx context.Context, hc *HelixClient, accessToken, endpoint string, fn func(*helix.Client) (T, helix.ResponseCommon, error)) (T, error) {
	return retry.Do(ctx, hc.policy, classifyHelixError, func(ctx context.Context) (T, error) {
		var zero T
		if err := hc.limiter.Wait(ctx); err != nil {
			return zero, err
		}

		hc.mu.Lock()
		hc.client.SetUserAccessToken(accessToken)
		resp, common, err := fn(hc.client)
		hc.mu.Unlock()

		if err != nil {
			return zero, fmt.Errorf("helix %s: %w", endpoint, err)
		}
		if common.StatusCode < 200 || common.StatusCode >= 300 {
			return zero, &domain.UpstreamAPIError{
				Endpoint: endpoint,
				Status:   common.StatusCode,
				Body:     common.ErrorMessage,
			}
		}
		return resp, nil
	})
}

func classifyHelixError(err error) retry.Action {
	if apiErr, ok := errors.AsType[*domain.UpstreamAPIError](err); ok {
		if apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500 {
			return retry.Retry
		}
		return retry.Stop
	}
	return retry.UnlessCanceled(err)
}
