package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juicerq/witch/internal/domain"
)

// --- Mock implementations ---

type mockTokenRepo struct {
	getFn          func(ctx context.Context) (*domain.TokenRecord, error)
	replaceFn      func(ctx context.Context, record domain.TokenRecord) error
	updateTokensFn func(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	deleteAllFn    func(ctx context.Context) error
}

func (m *mockTokenRepo) Get(ctx context.Context) (*domain.TokenRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return nil, domain.ErrNotAuthenticated
}

func (m *mockTokenRepo) Replace(ctx context.Context, record domain.TokenRecord) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, record)
	}
	return nil
}

func (m *mockTokenRepo) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	if m.updateTokensFn != nil {
		return m.updateTokensFn(ctx, id, accessToken, refreshToken, expiresAt)
	}
	return nil
}

func (m *mockTokenRepo) DeleteAll(ctx context.Context) error {
	if m.deleteAllFn != nil {
		return m.deleteAllFn(ctx)
	}
	return nil
}

type mockOAuthProvider struct {
	authCodeURLFn func(state, verifier string) string
	exchangeFn    func(ctx context.Context, code, verifier string) (domain.TokenGrant, error)
	refreshFn     func(ctx context.Context, refreshToken string) (domain.TokenGrant, error)
}

func (m *mockOAuthProvider) AuthCodeURL(state, verifier string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state, verifier)
	}
	return "https://id.twitch.tv/oauth2/authorize?state=" + state
}

func (m *mockOAuthProvider) Exchange(ctx context.Context, code, verifier string) (domain.TokenGrant, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, verifier)
	}
	return domain.TokenGrant{}, fmt.Errorf("not implemented")
}

func (m *mockOAuthProvider) Refresh(ctx context.Context, refreshToken string) (domain.TokenGrant, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return domain.TokenGrant{}, fmt.Errorf("not implemented")
}

type mockTwitchAPI struct {
	getCurrentUserFn      func(ctx context.Context, accessToken string) (domain.User, error)
	getUsersByIDsFn       func(ctx context.Context, accessToken string, ids []string) ([]domain.User, error)
	getFollowedChannelsFn func(ctx context.Context, accessToken, userID string) ([]domain.FollowedChannel, error)
	getLiveStreamsFn      func(ctx context.Context, accessToken string, ids []string) ([]domain.LiveStream, error)
}

func (m *mockTwitchAPI) GetCurrentUser(ctx context.Context, accessToken string) (domain.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, accessToken)
	}
	return domain.User{}, fmt.Errorf("not implemented")
}

func (m *mockTwitchAPI) GetUsersByIDs(ctx context.Context, accessToken string, ids []string) ([]domain.User, error) {
	if m.getUsersByIDsFn != nil {
		return m.getUsersByIDsFn(ctx, accessToken, ids)
	}
	return nil, nil
}

func (m *mockTwitchAPI) GetFollowedChannels(ctx context.Context, accessToken, userID string) ([]domain.FollowedChannel, error) {
	if m.getFollowedChannelsFn != nil {
		return m.getFollowedChannelsFn(ctx, accessToken, userID)
	}
	return nil, nil
}

func (m *mockTwitchAPI) GetLiveStreams(ctx context.Context, accessToken string, ids []string) ([]domain.LiveStream, error) {
	if m.getLiveStreamsFn != nil {
		return m.getLiveStreamsFn(ctx, accessToken, ids)
	}
	return nil, nil
}

type mockFavoriteRepo struct {
	listFn       func(ctx context.Context) ([]domain.Favorite, error)
	listNotifyFn func(ctx context.Context) ([]domain.Favorite, error)
	toggleFn     func(ctx context.Context, channelID, channelLogin, channelName string) (bool, error)
	setNotifyFn  func(ctx context.Context, channelID string, notify bool) (*domain.Favorite, error)
}

func (m *mockFavoriteRepo) List(ctx context.Context) ([]domain.Favorite, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockFavoriteRepo) ListNotify(ctx context.Context) ([]domain.Favorite, error) {
	if m.listNotifyFn != nil {
		return m.listNotifyFn(ctx)
	}
	return nil, nil
}

func (m *mockFavoriteRepo) Toggle(ctx context.Context, channelID, channelLogin, channelName string) (bool, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, channelID, channelLogin, channelName)
	}
	return false, fmt.Errorf("not implemented")
}

func (m *mockFavoriteRepo) SetNotify(ctx context.Context, channelID string, notify bool) (*domain.Favorite, error) {
	if m.setNotifyFn != nil {
		return m.setNotifyFn(ctx, channelID, notify)
	}
	return nil, domain.ErrFavoriteNotFound
}

// memSettings is a map-backed SettingsRepository seeded with the defaults.
type memSettings struct {
	mu   sync.Mutex
	rows map[string]string
	err  error
}

func newMemSettings() *memSettings {
	return &memSettings{rows: map[string]string{
		domain.SettingPollingInterval:      "60000",
		domain.SettingNotificationsEnabled: "true",
	}}
}

func (m *memSettings) All(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]string, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out, nil
}

func (m *memSettings) Upsert(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[key] = value
	return nil
}

// memSessions is an in-memory SessionRepository that enforces the same
// one-open-session-per-channel rule as the database index.
type memSessions struct {
	mu        sync.Mutex
	sessions  []domain.StreamSession
	listErr   error
	insertErr error
}

func (m *memSessions) ListOpen(_ context.Context) ([]domain.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var open []domain.StreamSession
	for _, s := range m.sessions {
		if s.Open() {
			open = append(open, s)
		}
	}
	return open, nil
}

func (m *memSessions) Insert(_ context.Context, session domain.StreamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, s := range m.sessions {
		if s.ChannelID == session.ChannelID && s.Open() {
			return fmt.Errorf("channel %s already has an open session", session.ChannelID)
		}
	}
	m.sessions = append(m.sessions, session)
	return nil
}

func (m *memSessions) Close(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id && m.sessions[i].EndedAt == nil {
			ended := endedAt
			m.sessions[i].EndedAt = &ended
		}
	}
	return nil
}

func (m *memSessions) ListByChannel(_ context.Context, channelID string) ([]domain.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.StreamSession
	for _, s := range m.sessions {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessions) History(ctx context.Context, channelID string, limit int) ([]domain.StreamSession, error) {
	out, err := m.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.StreamSession) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return out[:min(limit, len(out))], nil
}

func (m *memSessions) HistorySummaries(_ context.Context, channelIDs []string) (map[string]domain.HistorySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make(map[string]domain.HistorySummary, len(channelIDs))
	for _, id := range channelIDs {
		out[id] = domain.HistorySummary{}
	}
	for _, s := range m.sessions {
		summary, ok := out[s.ChannelID]
		if !ok {
			continue
		}
		summary.StreamCount++
		if summary.LastOnline == nil || s.StartedAt.After(*summary.LastOnline) {
			started := s.StartedAt
			summary.LastOnline = &started
		}
		out[s.ChannelID] = summary
	}
	return out, nil
}

func (m *memSessions) forChannel(channelID string) []domain.StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StreamSession
	for _, s := range m.sessions {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b domain.StreamSession) int {
		return cmp.Compare(a.StartedAt.UnixNano(), b.StartedAt.UnixNano())
	})
	return out
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.FavoriteLive
	err    error
}

func (m *mockPublisher) PublishFavoriteLive(_ context.Context, event domain.FavoriteLive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) published() []domain.FavoriteLive {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

type mockStatsCache struct {
	getFn        func(ctx context.Context, channelID string, load func(ctx context.Context) (domain.StreamerStats, error)) (domain.StreamerStats, error)
	mu           sync.Mutex
	invalidated  []string
	invalidateFn func(ctx context.Context, channelIDs ...string) error
}

func (m *mockStatsCache) Get(ctx context.Context, channelID string, load func(ctx context.Context) (domain.StreamerStats, error)) (domain.StreamerStats, error) {
	if m.getFn != nil {
		return m.getFn(ctx, channelID, load)
	}
	return load(ctx)
}

func (m *mockStatsCache) Invalidate(ctx context.Context, channelIDs ...string) error {
	m.mu.Lock()
	m.invalidated = append(m.invalidated, channelIDs...)
	m.mu.Unlock()
	if m.invalidateFn != nil {
		return m.invalidateFn(ctx, channelIDs...)
	}
	return nil
}

func (m *mockStatsCache) invalidatedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.invalidated)
}

type mockLedgerSink struct {
	mu     sync.Mutex
	calls  int
	live   []domain.LiveStream
	scope  []string
	scoped bool
}

func (m *mockLedgerSink) Enqueue(_ context.Context, live []domain.LiveStream, scope []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.live = live
	m.scope = scope
	m.scoped = scope != nil
	return true
}

type mockCredentialValidator struct {
	validateFn func(ctx context.Context, clientID, clientSecret string) error
}

func (m *mockCredentialValidator) ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) error {
	if m.validateFn != nil {
		return m.validateFn(ctx, clientID, clientSecret)
	}
	return nil
}

func liveStream(id string, startedAt time.Time) domain.LiveStream {
	return domain.LiveStream{
		UserID:    id,
		UserLogin: "login" + id,
		UserName:  "Name" + id,
		GameName:  "Just Chatting",
		StartedAt: startedAt,
	}
}
