package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/juicerq/witch/internal/adapter/metrics"
	"github.com/juicerq/witch/internal/domain"
	"github.com/juicerq/witch/internal/platform/config"
	"github.com/juicerq/witch/web"
	"github.com/labstack/echo/v4"
)

type appService interface {
	GetLoginURL(ctx context.Context) (domain.LoginURL, error)
	HandleAuthCallback(ctx context.Context, code, state string) (domain.AuthResult, error)
	GetAuthStatus(ctx context.Context) (domain.AuthStatus, error)
	Logout(ctx context.Context) error

	ListFavorites(ctx context.Context) ([]domain.Favorite, error)
	ToggleFavorite(ctx context.Context, channelID, channelLogin, channelName string) (bool, error)
	SetFavoriteNotify(ctx context.Context, channelID string, notify bool) (*domain.Favorite, error)

	GetSettings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error)

	GetFollowedStreams(ctx context.Context) (domain.FollowedStreams, error)
	GetStreamHistory(ctx context.Context, channelID string, limit int) ([]domain.HistoryEntry, error)
	GetStreamerStats(ctx context.Context, channelID string) (domain.StreamerStats, error)
}

type setupService interface {
	Status() domain.SetupStatus
	Validate(ctx context.Context, input domain.SetupInput) domain.ValidationResult
	Save(input domain.SetupInput) (string, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app   appService
	setup setupService

	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	templates    *template.Template
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer builds the HTTP server. websocketHandler, metricsHandler and
// httpMetrics may be nil, which leaves the matching routes or middleware out.
func NewServer(cfg *config.Config, app appService, setup setupService, websocketHandler, metricsHandler http.Handler, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) (*Server, error) {
	templates, err := template.ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		app:              app,
		setup:            setup,
		websocketHandler: websocketHandler,
		metricsHandler:   metricsHandler,
		httpMetrics:      httpMetrics,
		templates:        templates,
		healthChecks:     healthChecks,
		startTime:        time.Now(),
	}

	e.HTTPErrorHandler = srv.handleHTTPError
	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) renderTemplate(c echo.Context, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(status, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
