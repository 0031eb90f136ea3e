package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/juicerq/witch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc       *Service
	tokenRepo *mockTokenRepo
	oauth     *mockOAuthProvider
	twitch    *mockTwitchAPI
	favorites *mockFavoriteRepo
	settings  *memSettings
	sessions  *memSessions
	ledger    *mockLedgerSink
	stats     *mockStatsCache
	states    *AuthStateStore
	hub       *LiveHub
	clock     *clockwork.FakeClock
}

func newServiceFixture() *serviceFixture {
	clock := clockwork.NewFakeClockAt(tokenNow)
	f := &serviceFixture{
		tokenRepo: &mockTokenRepo{},
		oauth:     &mockOAuthProvider{},
		twitch:    &mockTwitchAPI{},
		favorites: &mockFavoriteRepo{},
		settings:  newMemSettings(),
		sessions:  &memSessions{},
		ledger:    &mockLedgerSink{},
		stats:     &mockStatsCache{},
		hub:       NewLiveHub(),
		clock:     clock,
	}
	f.states = NewAuthStateStore(clock)
	f.svc = NewService(ServiceDeps{
		Tokens:    NewTokenManager(f.tokenRepo, f.oauth, clock),
		TokenRepo: f.tokenRepo,
		OAuth:     NewOAuthFlow(f.states, f.oauth),
		Twitch:    f.twitch,
		Favorites: f.favorites,
		Settings:  f.settings,
		Sessions:  f.sessions,
		Ledger:    f.ledger,
		Stats:     f.stats,
		Hub:       f.hub,
		StatsLoc:  time.UTC,
		Clock:     clock,
	})
	return f
}

func (f *serviceFixture) loggedIn() {
	rec := &domain.TokenRecord{ID: uuid.New(), UserID: "me", AccessToken: "access", RefreshToken: "refresh", ExpiresAt: tokenNow.Add(time.Hour)}
	f.tokenRepo.getFn = func(context.Context) (*domain.TokenRecord, error) { return rec, nil }
}

// --- Auth ---

func TestHandleAuthCallback_StoresToken(t *testing.T) {
	f := newServiceFixture()
	f.oauth.exchangeFn = func(context.Context, string, string) (domain.TokenGrant, error) {
		return domain.TokenGrant{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 4 * time.Hour}, nil
	}
	f.twitch.getCurrentUserFn = func(_ context.Context, token string) (domain.User, error) {
		assert.Equal(t, "access", token)
		return domain.User{ID: "42", Login: "viewer", DisplayName: "Viewer"}, nil
	}
	var stored domain.TokenRecord
	f.tokenRepo.replaceFn = func(_ context.Context, record domain.TokenRecord) error {
		stored = record
		return nil
	}

	login, err := f.svc.GetLoginURL(context.Background())
	require.NoError(t, err)

	res, err := f.svc.HandleAuthCallback(context.Background(), "code", login.State)
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.User)
	assert.Equal(t, "viewer", res.User.Login)

	assert.NotEqual(t, uuid.Nil, stored.ID)
	assert.Equal(t, "42", stored.UserID)
	assert.Equal(t, "access", stored.AccessToken)
	assert.Equal(t, "refresh", stored.RefreshToken)
	assert.Equal(t, tokenNow.Add(4*time.Hour), stored.ExpiresAt)
}

func TestHandleAuthCallback_BadStateCreatesNoToken(t *testing.T) {
	f := newServiceFixture()
	f.tokenRepo.replaceFn = func(context.Context, domain.TokenRecord) error {
		t.Fatal("no token row may be written")
		return nil
	}

	_, err := f.svc.HandleAuthCallback(context.Background(), "code", "forged")
	assert.ErrorIs(t, err, domain.ErrInvalidAuthState)
}

func TestHandleAuthCallback_UserLookupFails(t *testing.T) {
	f := newServiceFixture()
	f.oauth.exchangeFn = func(context.Context, string, string) (domain.TokenGrant, error) {
		return domain.TokenGrant{AccessToken: "access"}, nil
	}
	f.twitch.getCurrentUserFn = func(context.Context, string) (domain.User, error) {
		return domain.User{}, &domain.UpstreamAPIError{Endpoint: "/users", Status: 503}
	}
	f.tokenRepo.replaceFn = func(context.Context, domain.TokenRecord) error {
		t.Fatal("no token row may be written")
		return nil
	}

	login, err := f.svc.GetLoginURL(context.Background())
	require.NoError(t, err)

	_, err = f.svc.HandleAuthCallback(context.Background(), "code", login.State)
	_, ok := errors.AsType[*domain.UpstreamAPIError](err)
	assert.True(t, ok)
}

func TestGetAuthStatus(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		f := newServiceFixture()

		status, err := f.svc.GetAuthStatus(context.Background())
		require.NoError(t, err)
		assert.False(t, status.Authenticated)
		assert.Nil(t, status.User)
	})

	t.Run("valid token", func(t *testing.T) {
		f := newServiceFixture()
		f.loggedIn()
		f.twitch.getCurrentUserFn = func(context.Context, string) (domain.User, error) {
			return domain.User{ID: "me", Login: "viewer"}, nil
		}

		status, err := f.svc.GetAuthStatus(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Authenticated)
		require.NotNil(t, status.User)
		assert.Equal(t, "viewer", status.User.Login)
	})

	t.Run("refresh rejected", func(t *testing.T) {
		f := newServiceFixture()
		rec := &domain.TokenRecord{ID: uuid.New(), RefreshToken: "refresh", ExpiresAt: tokenNow.Add(-time.Minute)}
		f.tokenRepo.getFn = func(context.Context) (*domain.TokenRecord, error) { return rec, nil }
		f.oauth.refreshFn = func(context.Context, string) (domain.TokenGrant, error) {
			return domain.TokenGrant{}, &domain.TokenRefreshError{Revoked: true, Err: errors.New("invalid")}
		}

		status, err := f.svc.GetAuthStatus(context.Background())
		require.NoError(t, err)
		assert.False(t, status.Authenticated)
	})
}

func TestLogout(t *testing.T) {
	f := newServiceFixture()
	deleted := false
	f.tokenRepo.deleteAllFn = func(context.Context) error { deleted = true; return nil }

	require.NoError(t, f.svc.Logout(context.Background()))
	assert.True(t, deleted)
}

// --- Settings ---

func TestUpdateSettings_PartialPatch(t *testing.T) {
	f := newServiceFixture()

	got, err := f.svc.UpdateSettings(context.Background(), domain.SettingsPatch{PollingInterval: ptr("120000")})
	require.NoError(t, err)

	assert.Equal(t, "120000", got.PollingInterval)
	assert.Equal(t, "true", got.NotificationsEnabled)

	again, err := f.svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestGetSettings_DefaultsForMissingRows(t *testing.T) {
	f := newServiceFixture()
	f.settings.rows = map[string]string{}

	got, err := f.svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)
}

// --- Streams ---

func TestGetFollowedStreams_NotAuthenticated(t *testing.T) {
	f := newServiceFixture()

	got, err := f.svc.GetFollowedStreams(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Online)
	assert.Empty(t, got.Offline)
	assert.NotNil(t, got.Online)
	assert.Zero(t, f.ledger.calls)
}

func TestService_WithoutTwitchCredentials(t *testing.T) {
	f := newServiceFixture()
	svc := NewService(ServiceDeps{
		TokenRepo: f.tokenRepo,
		Favorites: f.favorites,
		Settings:  f.settings,
		Sessions:  f.sessions,
		Ledger:    f.ledger,
		Stats:     f.stats,
		Hub:       f.hub,
		StatsLoc:  time.UTC,
		Clock:     f.clock,
	})
	ctx := context.Background()

	_, err := svc.GetLoginURL(ctx)
	require.ErrorIs(t, err, domain.ErrTwitchNotConfigured)

	_, err = svc.HandleAuthCallback(ctx, "code", "state")
	require.ErrorIs(t, err, domain.ErrTwitchNotConfigured)

	status, err := svc.GetAuthStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Authenticated)

	streams, err := svc.GetFollowedStreams(ctx)
	require.NoError(t, err)
	assert.Empty(t, streams.Online)
	assert.Empty(t, streams.Offline)
	assert.Zero(t, f.ledger.calls)

	// Storage-backed operations keep working.
	settings, err := svc.UpdateSettings(ctx, domain.SettingsPatch{PollingInterval: ptr("120000")})
	require.NoError(t, err)
	assert.Equal(t, "120000", settings.PollingInterval)
}

func TestGetFollowedStreams_SplitsOnlineAndOffline(t *testing.T) {
	f := newServiceFixture()
	f.loggedIn()

	f.twitch.getFollowedChannelsFn = func(_ context.Context, _, userID string) ([]domain.FollowedChannel, error) {
		assert.Equal(t, "me", userID)
		return []domain.FollowedChannel{
			{BroadcasterID: "1", BroadcasterLogin: "one", BroadcasterName: "One"},
			{BroadcasterID: "2", BroadcasterLogin: "two", BroadcasterName: "Two"},
			{BroadcasterID: "3", BroadcasterLogin: "three", BroadcasterName: "Three"},
		}, nil
	}
	f.twitch.getLiveStreamsFn = func(_ context.Context, _ string, ids []string) ([]domain.LiveStream, error) {
		assert.Equal(t, []string{"1", "2", "3"}, ids)
		s := liveStream("2", t2)
		s.ViewerCount = 99
		return []domain.LiveStream{s}, nil
	}
	f.twitch.getUsersByIDsFn = func(_ context.Context, _ string, ids []string) ([]domain.User, error) {
		assert.Equal(t, []string{"1", "3"}, ids)
		return []domain.User{{ID: "1", ProfileImageURL: "https://img/1.png"}}, nil
	}
	f.favorites.listFn = func(context.Context) ([]domain.Favorite, error) {
		return []domain.Favorite{{ChannelID: "2"}, {ChannelID: "3"}}, nil
	}
	ended := t1.Add(time.Hour)
	f.sessions.sessions = []domain.StreamSession{
		{ID: uuid.New(), ChannelID: "1", StartedAt: t1, EndedAt: &ended},
		{ID: uuid.New(), ChannelID: "2", StartedAt: t1, EndedAt: &ended},
	}

	got, err := f.svc.GetFollowedStreams(context.Background())
	require.NoError(t, err)

	require.Len(t, got.Online, 1)
	online := got.Online[0]
	assert.Equal(t, "2", online.UserID)
	assert.True(t, online.IsLive)
	assert.True(t, online.IsFavorite)
	assert.Equal(t, 99, online.ViewerCount)
	assert.Equal(t, t2, online.LastOnline)
	assert.Equal(t, 1, online.StreamCount)

	require.Len(t, got.Offline, 2)
	assert.Equal(t, "1", got.Offline[0].UserID)
	assert.False(t, got.Offline[0].IsFavorite)
	assert.False(t, got.Offline[0].IsLive)
	assert.Equal(t, "https://img/1.png", got.Offline[0].ProfileImageURL)
	require.NotNil(t, got.Offline[0].LastOnline)
	assert.Equal(t, t1, *got.Offline[0].LastOnline)
	assert.Equal(t, 1, got.Offline[0].StreamCount)

	assert.Equal(t, "3", got.Offline[1].UserID)
	assert.True(t, got.Offline[1].IsFavorite)
	assert.Empty(t, got.Offline[1].ProfileImageURL)
	assert.Nil(t, got.Offline[1].LastOnline)
	assert.Zero(t, got.Offline[1].StreamCount)

	assert.Equal(t, 1, f.ledger.calls)
	assert.False(t, f.ledger.scoped, "the followed list reconciles every open session")
}

func TestGetFollowedStreams_HistoryFailureDegrades(t *testing.T) {
	f := newServiceFixture()
	f.loggedIn()
	f.twitch.getFollowedChannelsFn = func(context.Context, string, string) ([]domain.FollowedChannel, error) {
		return []domain.FollowedChannel{{BroadcasterID: "1"}}, nil
	}
	f.sessions.listErr = errors.New("db down")

	got, err := f.svc.GetFollowedStreams(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Offline, 1)
	assert.Zero(t, got.Offline[0].StreamCount)
	assert.Nil(t, got.Offline[0].LastOnline)
}

func TestGetFollowedStreams_UpstreamErrorPropagates(t *testing.T) {
	f := newServiceFixture()
	f.loggedIn()
	f.twitch.getFollowedChannelsFn = func(context.Context, string, string) ([]domain.FollowedChannel, error) {
		return nil, &domain.UpstreamAPIError{Endpoint: "/channels/followed", Status: 500}
	}

	_, err := f.svc.GetFollowedStreams(context.Background())
	_, ok := errors.AsType[*domain.UpstreamAPIError](err)
	assert.True(t, ok)
}

func TestGetStreamHistory_Limits(t *testing.T) {
	f := newServiceFixture()
	for i := range 120 {
		started := t1.Add(time.Duration(i) * time.Hour)
		ended := started.Add(30 * time.Minute)
		f.sessions.sessions = append(f.sessions.sessions, domain.StreamSession{ID: uuid.New(), ChannelID: "1", StartedAt: started, EndedAt: &ended})
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, 20},
		{-3, 20},
		{5, 5},
		{500, 100},
	}
	for _, tt := range tests {
		got, err := f.svc.GetStreamHistory(context.Background(), "1", tt.limit)
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "limit %d", tt.limit)
	}

	got, err := f.svc.GetStreamHistory(context.Background(), "1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t1.Add(119*time.Hour), got[0].StartedAt)
	require.NotNil(t, got[0].DurationMinutes)
	assert.Equal(t, 30, *got[0].DurationMinutes)
}

func TestGetStreamerStats_GoesThroughCache(t *testing.T) {
	f := newServiceFixture()
	ended := t1.Add(45 * time.Minute)
	f.sessions.sessions = []domain.StreamSession{{ID: uuid.New(), ChannelID: "1", StartedAt: t1, EndedAt: &ended}}

	var cachedFor string
	f.stats.getFn = func(ctx context.Context, channelID string, load func(context.Context) (domain.StreamerStats, error)) (domain.StreamerStats, error) {
		cachedFor = channelID
		return load(ctx)
	}

	stats, err := f.svc.GetStreamerStats(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, "1", cachedFor)
	assert.Equal(t, 1, stats.TotalSessions)
	require.NotNil(t, stats.AverageDuration)
	assert.Equal(t, 45, *stats.AverageDuration)
}

func TestGetStreamerStats_UnknownChannel(t *testing.T) {
	f := newServiceFixture()

	stats, err := f.svc.GetStreamerStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.EmptyStats(), stats)
}

// --- Notifications ---

func TestSubscribeFavoriteLive(t *testing.T) {
	f := newServiceFixture()
	ch, unsub := f.svc.SubscribeFavoriteLive(4)
	defer unsub()

	require.NoError(t, f.hub.PublishFavoriteLive(context.Background(), domain.FavoriteLive{UserID: "7"}))
	assert.Equal(t, "7", (<-ch).UserID)
}
