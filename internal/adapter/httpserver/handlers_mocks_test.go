package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/juicerq/witch/internal/adapter/metrics"
	"github.com/juicerq/witch/internal/domain"
	"github.com/juicerq/witch/internal/platform/config"
	"github.com/stretchr/testify/require"
)

type mockAppService struct {
	getLoginURLFn        func(ctx context.Context) (domain.LoginURL, error)
	handleAuthCallbackFn func(ctx context.Context, code, state string) (domain.AuthResult, error)
	getAuthStatusFn      func(ctx context.Context) (domain.AuthStatus, error)
	logoutFn             func(ctx context.Context) error
	listFavoritesFn      func(ctx context.Context) ([]domain.Favorite, error)
	toggleFavoriteFn     func(ctx context.Context, channelID, channelLogin, channelName string) (bool, error)
	setFavoriteNotifyFn  func(ctx context.Context, channelID string, notify bool) (*domain.Favorite, error)
	getSettingsFn        func(ctx context.Context) (domain.Settings, error)
	updateSettingsFn     func(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error)
	getFollowedStreamsFn func(ctx context.Context) (domain.FollowedStreams, error)
	getStreamHistoryFn   func(ctx context.Context, channelID string, limit int) ([]domain.HistoryEntry, error)
	getStreamerStatsFn   func(ctx context.Context, channelID string) (domain.StreamerStats, error)
}

func (m *mockAppService) GetLoginURL(ctx context.Context) (domain.LoginURL, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(ctx)
	}
	return domain.LoginURL{}, nil
}

func (m *mockAppService) HandleAuthCallback(ctx context.Context, code, state string) (domain.AuthResult, error) {
	if m.handleAuthCallbackFn != nil {
		return m.handleAuthCallbackFn(ctx, code, state)
	}
	return domain.AuthResult{}, nil
}

func (m *mockAppService) GetAuthStatus(ctx context.Context) (domain.AuthStatus, error) {
	if m.getAuthStatusFn != nil {
		return m.getAuthStatusFn(ctx)
	}
	return domain.AuthStatus{}, nil
}

func (m *mockAppService) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

func (m *mockAppService) ListFavorites(ctx context.Context) ([]domain.Favorite, error) {
	if m.listFavoritesFn != nil {
		return m.listFavoritesFn(ctx)
	}
	return []domain.Favorite{}, nil
}

func (m *mockAppService) ToggleFavorite(ctx context.Context, channelID, channelLogin, channelName string) (bool, error) {
	if m.toggleFavoriteFn != nil {
		return m.toggleFavoriteFn(ctx, channelID, channelLogin, channelName)
	}
	return false, nil
}

func (m *mockAppService) SetFavoriteNotify(ctx context.Context, channelID string, notify bool) (*domain.Favorite, error) {
	if m.setFavoriteNotifyFn != nil {
		return m.setFavoriteNotifyFn(ctx, channelID, notify)
	}
	return nil, domain.ErrFavoriteNotFound
}

func (m *mockAppService) GetSettings(ctx context.Context) (domain.Settings, error) {
	if m.getSettingsFn != nil {
		return m.getSettingsFn(ctx)
	}
	return domain.Settings{}, nil
}

func (m *mockAppService) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	if m.updateSettingsFn != nil {
		return m.updateSettingsFn(ctx, patch)
	}
	return domain.Settings{}, nil
}

func (m *mockAppService) GetFollowedStreams(ctx context.Context) (domain.FollowedStreams, error) {
	if m.getFollowedStreamsFn != nil {
		return m.getFollowedStreamsFn(ctx)
	}
	return domain.FollowedStreams{}, nil
}

func (m *mockAppService) GetStreamHistory(ctx context.Context, channelID string, limit int) ([]domain.HistoryEntry, error) {
	if m.getStreamHistoryFn != nil {
		return m.getStreamHistoryFn(ctx, channelID, limit)
	}
	return []domain.HistoryEntry{}, nil
}

func (m *mockAppService) GetStreamerStats(ctx context.Context, channelID string) (domain.StreamerStats, error) {
	if m.getStreamerStatsFn != nil {
		return m.getStreamerStatsFn(ctx, channelID)
	}
	return domain.StreamerStats{}, nil
}

type mockSetupService struct {
	statusFn   func() domain.SetupStatus
	validateFn func(ctx context.Context, input domain.SetupInput) domain.ValidationResult
	saveFn     func(input domain.SetupInput) (string, error)
}

func (m *mockSetupService) Status() domain.SetupStatus {
	if m.statusFn != nil {
		return m.statusFn()
	}
	return domain.SetupStatus{}
}

func (m *mockSetupService) Validate(ctx context.Context, input domain.SetupInput) domain.ValidationResult {
	if m.validateFn != nil {
		return m.validateFn(ctx, input)
	}
	return domain.ValidationResult{OK: true, Message: "ok"}
}

func (m *mockSetupService) Save(input domain.SetupInput) (string, error) {
	if m.saveFn != nil {
		return m.saveFn(input)
	}
	return "/tmp/.env", nil
}

type testServerOptions struct {
	setup        setupService
	healthChecks []HealthCheck
	httpMetrics  *metrics.HTTPMetrics
	websocket    http.Handler
}

type testServerOption func(*testServerOptions)

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func withSetup(setup setupService) testServerOption {
	return func(o *testServerOptions) { o.setup = setup }
}

func withHTTPMetrics(m *metrics.HTTPMetrics) testServerOption {
	return func(o *testServerOptions) { o.httpMetrics = m }
}

func withWebsocket(h http.Handler) testServerOption {
	return func(o *testServerOptions) { o.websocket = h }
}

func newTestServer(t *testing.T, app appService, opts ...testServerOption) *Server {
	t.Helper()

	o := testServerOptions{setup: &mockSetupService{}}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &config.Config{Port: "0", AllowedOriginsRaw: "http://localhost:1420"}
	srv, err := NewServer(cfg, app, o.setup, o.websocket, nil, o.httpMetrics, o.healthChecks)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
