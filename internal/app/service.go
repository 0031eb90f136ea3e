package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/juicerq/witch/internal/domain"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Service is the application layer. HTTP handlers only talk to it; it is the
// one place that combines tokens, Twitch, favorites and the session ledger.
type Service struct {
	tokens    *TokenManager
	tokenRepo domain.TokenRepository
	oauth     *OAuthFlow
	twitch    domain.TwitchAPI
	favorites domain.FavoriteRepository
	settings  domain.SettingsRepository
	sessions  domain.SessionRepository
	ledger    ledgerSink
	stats     domain.StatsCache
	hub       *LiveHub
	statsLoc  *time.Location
	clock     clockwork.Clock
}

type ServiceDeps struct {
	Tokens    *TokenManager
	TokenRepo domain.TokenRepository
	OAuth     *OAuthFlow
	Twitch    domain.TwitchAPI
	Favorites domain.FavoriteRepository
	Settings  domain.SettingsRepository
	Sessions  domain.SessionRepository
	Ledger    ledgerSink
	Stats     domain.StatsCache
	Hub       *LiveHub
	StatsLoc  *time.Location
	Clock     clockwork.Clock
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		tokens:    deps.Tokens,
		tokenRepo: deps.TokenRepo,
		oauth:     deps.OAuth,
		twitch:    deps.Twitch,
		favorites: deps.Favorites,
		settings:  deps.Settings,
		sessions:  deps.Sessions,
		ledger:    deps.Ledger,
		stats:     deps.Stats,
		hub:       deps.Hub,
		statsLoc:  deps.StatsLoc,
		clock:     deps.Clock,
	}
}

// --- Auth ---

// twitchReady is false when the server booted without Twitch credentials.
// Only the setup API is usable until they are saved and the server restarts.
func (s *Service) twitchReady() bool {
	return s.tokens != nil && s.oauth != nil && s.twitch != nil
}

func (s *Service) GetLoginURL(ctx context.Context) (domain.LoginURL, error) {
	if !s.twitchReady() {
		return domain.LoginURL{}, domain.ErrTwitchNotConfigured
	}
	return s.oauth.GetAuthURL(ctx)
}

// HandleAuthCallback completes the login and replaces any stored token with
// the new one.
func (s *Service) HandleAuthCallback(ctx context.Context, code, state string) (domain.AuthResult, error) {
	if !s.twitchReady() {
		return domain.AuthResult{}, domain.ErrTwitchNotConfigured
	}
	grant, err := s.oauth.ExchangeCode(ctx, code, state)
	if err != nil {
		return domain.AuthResult{}, err
	}

	user, err := s.twitch.GetCurrentUser(ctx, grant.AccessToken)
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("failed to fetch current user: %w", err)
	}

	now := s.clock.Now()
	record := domain.TokenRecord{
		ID:           uuid.New(),
		UserID:       user.ID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    now.Add(grant.ExpiresIn),
		CreatedAt:    now,
	}
	if err := s.tokenRepo.Replace(ctx, record); err != nil {
		return domain.AuthResult{}, fmt.Errorf("failed to store token: %w", err)
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID, "login", user.Login)
	return domain.AuthResult{Success: true, User: &user}, nil
}

// GetAuthStatus reports unauthenticated when no token is stored, the stored
// one can no longer be refreshed, or Twitch is not configured yet.
func (s *Service) GetAuthStatus(ctx context.Context) (domain.AuthStatus, error) {
	if !s.twitchReady() {
		return domain.AuthStatus{}, nil
	}
	token, err := s.tokens.GetValidToken(ctx)
	if refreshErr, ok := errors.AsType[*domain.TokenRefreshError](err); ok {
		slog.WarnContext(ctx, "Token refresh failed, reporting unauthenticated", "revoked", refreshErr.Revoked, "error", err)
		return domain.AuthStatus{}, nil
	}
	if err != nil {
		return domain.AuthStatus{}, err
	}
	if token == nil {
		return domain.AuthStatus{}, nil
	}

	user, err := s.twitch.GetCurrentUser(ctx, token.AccessToken)
	if err != nil {
		return domain.AuthStatus{}, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return domain.AuthStatus{Authenticated: true, User: &user}, nil
}

func (s *Service) Logout(ctx context.Context) error {
	if err := s.tokenRepo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	slog.InfoContext(ctx, "User logged out")
	return nil
}

// --- Favorites ---

func (s *Service) ListFavorites(ctx context.Context) ([]domain.Favorite, error) {
	return s.favorites.List(ctx)
}

func (s *Service) ToggleFavorite(ctx context.Context, channelID, channelLogin, channelName string) (bool, error) {
	return s.favorites.Toggle(ctx, channelID, channelLogin, channelName)
}

func (s *Service) SetFavoriteNotify(ctx context.Context, channelID string, notify bool) (*domain.Favorite, error) {
	return s.favorites.SetNotify(ctx, channelID, notify)
}

// --- Settings ---

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	rows, err := s.settings.All(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return domain.SettingsFromRows(rows), nil
}

// UpdateSettings writes only the keys present in patch and returns the full
// settings afterwards.
func (s *Service) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	for _, entry := range patch.Entries() {
		if err := s.settings.Upsert(ctx, entry[0], entry[1]); err != nil {
			return domain.Settings{}, fmt.Errorf("failed to update setting %s: %w", entry[0], err)
		}
	}
	return s.GetSettings(ctx)
}

// --- Streams ---

// GetFollowedStreams splits the followed channels into online and offline.
// Live snapshots are handed to the ledger without waiting for the write.
func (s *Service) GetFollowedStreams(ctx context.Context) (domain.FollowedStreams, error) {
	if !s.twitchReady() {
		return domain.EmptyFollowedStreams(), nil
	}
	token, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		return domain.FollowedStreams{}, err
	}
	if token == nil {
		return domain.EmptyFollowedStreams(), nil
	}

	followed, err := s.twitch.GetFollowedChannels(ctx, token.AccessToken, token.UserID)
	if err != nil {
		return domain.FollowedStreams{}, fmt.Errorf("failed to fetch followed channels: %w", err)
	}
	if len(followed) == 0 {
		return domain.EmptyFollowedStreams(), nil
	}

	ids := make([]string, 0, len(followed))
	for _, ch := range followed {
		ids = append(ids, ch.BroadcasterID)
	}

	live, err := s.twitch.GetLiveStreams(ctx, token.AccessToken, ids)
	if err != nil {
		return domain.FollowedStreams{}, fmt.Errorf("failed to fetch live streams: %w", err)
	}
	if s.ledger != nil {
		s.ledger.Enqueue(ctx, live, nil)
	}

	favorites, err := s.favorites.List(ctx)
	if err != nil {
		return domain.FollowedStreams{}, fmt.Errorf("failed to list favorites: %w", err)
	}
	favoriteIDs := make(map[string]struct{}, len(favorites))
	for _, f := range favorites {
		favoriteIDs[f.ChannelID] = struct{}{}
	}
	isFavorite := func(id string) bool {
		_, ok := favoriteIDs[id]
		return ok
	}

	liveIDs := make(map[string]struct{}, len(live))
	for _, stream := range live {
		liveIDs[stream.UserID] = struct{}{}
	}

	var offline []domain.FollowedChannel
	var offlineIDs []string
	for _, ch := range followed {
		if _, ok := liveIDs[ch.BroadcasterID]; !ok {
			offline = append(offline, ch)
			offlineIDs = append(offlineIDs, ch.BroadcasterID)
		}
	}

	users, err := s.twitch.GetUsersByIDs(ctx, token.AccessToken, offlineIDs)
	if err != nil {
		return domain.FollowedStreams{}, fmt.Errorf("failed to fetch offline users: %w", err)
	}
	profileImages := make(map[string]string, len(users))
	for _, u := range users {
		profileImages[u.ID] = u.ProfileImageURL
	}

	summaries, err := s.sessions.HistorySummaries(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load history summaries, using empty stats", "error", err)
		summaries = nil
	}

	result := domain.EmptyFollowedStreams()
	for _, stream := range live {
		result.Online = append(result.Online, domain.OnlineStream{
			UserID:       stream.UserID,
			UserLogin:    stream.UserLogin,
			UserName:     stream.UserName,
			GameName:     stream.GameName,
			ViewerCount:  stream.ViewerCount,
			StartedAt:    stream.StartedAt,
			ThumbnailURL: stream.ThumbnailURL,
			IsFavorite:   isFavorite(stream.UserID),
			IsLive:       true,
			LastOnline:   stream.StartedAt,
			StreamCount:  summaries[stream.UserID].StreamCount,
		})
	}
	for _, ch := range offline {
		summary := summaries[ch.BroadcasterID]
		result.Offline = append(result.Offline, domain.OfflineChannel{
			UserID:          ch.BroadcasterID,
			UserLogin:       ch.BroadcasterLogin,
			UserName:        ch.BroadcasterName,
			ProfileImageURL: profileImages[ch.BroadcasterID],
			IsFavorite:      isFavorite(ch.BroadcasterID),
			IsLive:          false,
			LastOnline:      summary.LastOnline,
			StreamCount:     summary.StreamCount,
		})
	}
	return result, nil
}

// GetStreamHistory returns the newest sessions of a channel first. limit is
// clamped to [1, MaxHistoryLimit]; zero or less means DefaultHistoryLimit.
func (s *Service) GetStreamHistory(ctx context.Context, channelID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	sessions, err := s.sessions.History(ctx, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream history: %w", err)
	}

	entries := make([]domain.HistoryEntry, 0, len(sessions))
	for _, session := range sessions {
		entries = append(entries, domain.HistoryEntryFromSession(session))
	}
	return entries, nil
}

func (s *Service) GetStreamerStats(ctx context.Context, channelID string) (domain.StreamerStats, error) {
	load := func(ctx context.Context) (domain.StreamerStats, error) {
		sessions, err := s.sessions.ListByChannel(ctx, channelID)
		if err != nil {
			return domain.StreamerStats{}, fmt.Errorf("failed to load sessions: %w", err)
		}
		return ComputeStats(sessions, s.statsLoc), nil
	}

	if s.stats == nil {
		return load(ctx)
	}
	return s.stats.Get(ctx, channelID, load)
}

// --- Notifications ---

// SubscribeFavoriteLive registers an in-process listener for favorite-live
// events. Call the returned func to unsubscribe.
func (s *Service) SubscribeFavoriteLive(buffer int) (<-chan domain.FavoriteLive, func()) {
	return s.hub.Subscribe(buffer)
}
