package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/juicerq/witch/internal/domain"
	apperrors "github.com/juicerq/witch/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type callbackPage struct {
	Success bool
	User    *domain.User
	Message string
	Detail  string
}

func (s *Server) registerAuthRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/api/auth/login-url", s.handleLoginURL, rateLimiter)
	s.echo.POST("/api/auth/callback", s.handleAuthCallback, rateLimiter)
	s.echo.GET("/api/auth/status", s.handleAuthStatus)
	s.echo.POST("/api/auth/logout", s.handleLogout)

	s.echo.GET("/auth/callback", s.handleOAuthCallbackPage, rateLimiter)
}

func (s *Server) handleLoginURL(c echo.Context) error {
	login, err := s.app.GetLoginURL(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to create login url", err)
	}
	return writeJSON(c, http.StatusOK, login)
}

func (s *Server) handleAuthCallback(c echo.Context) error {
	var req callbackRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Code == "" || req.State == "" {
		return apperrors.ValidationError("code and state are required")
	}

	result, err := s.app.HandleAuthCallback(c.Request().Context(), req.Code, req.State)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, result)
}

func (s *Server) handleAuthStatus(c echo.Context) error {
	status, err := s.app.GetAuthStatus(c.Request().Context())
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, status)
}

func (s *Server) handleLogout(c echo.Context) error {
	if err := s.app.Logout(c.Request().Context()); err != nil {
		return apperrors.InternalError("failed to log out", err)
	}
	return writeJSON(c, http.StatusOK, map[string]bool{"success": true})
}

// handleOAuthCallbackPage is the redirect target registered at Twitch. It
// finishes the login in the browser and renders a page the user can close.
func (s *Server) handleOAuthCallbackPage(c echo.Context) error {
	if providerErr := c.QueryParam("error"); providerErr != "" {
		slog.WarnContext(c.Request().Context(), "OAuth provider returned error", "error", providerErr, "description", c.QueryParam("error_description"))
		return s.renderCallback(c, http.StatusBadRequest, callbackPage{
			Message: "Twitch did not authorize the login.",
			Detail:  providerErrorDetail(providerErr, c.QueryParam("error_description")),
		})
	}

	code, state := c.QueryParam("code"), c.QueryParam("state")
	if code == "" || state == "" {
		return s.renderCallback(c, http.StatusBadRequest, callbackPage{Message: "The callback is missing the code or state parameter."})
	}

	result, err := s.app.HandleAuthCallback(c.Request().Context(), code, state)
	if errors.Is(err, domain.ErrInvalidAuthState) {
		return s.renderCallback(c, http.StatusBadRequest, callbackPage{Message: "The login link expired or was already used."})
	}
	if errors.Is(err, domain.ErrTwitchNotConfigured) {
		return s.renderCallback(c, http.StatusServiceUnavailable, callbackPage{Message: "Twitch credentials are not configured yet. Finish setup first."})
	}
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "OAuth callback failed", "error", err)
		return s.renderCallback(c, http.StatusBadGateway, callbackPage{Message: "The login could not be completed."})
	}

	return s.renderCallback(c, http.StatusOK, callbackPage{Success: true, User: result.User})
}

func (s *Server) renderCallback(c echo.Context, status int, page callbackPage) error {
	return s.renderTemplate(c, status, "callback.html", page)
}

func providerErrorDetail(code, description string) string {
	if description == "" {
		return code
	}
	return code + ": " + description
}
