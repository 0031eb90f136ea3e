package httpserver

import (
	"net/http"
	"strconv"

	"github.com/juicerq/witch/internal/domain"
	apperrors "github.com/juicerq/witch/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerSettingsRoutes() {
	s.echo.GET("/api/settings", s.handleGetSettings)
	s.echo.PATCH("/api/settings", s.handleUpdateSettings)
}

func (s *Server) handleGetSettings(c echo.Context) error {
	settings, err := s.app.GetSettings(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to load settings", err)
	}
	return writeJSON(c, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(c echo.Context) error {
	var patch domain.SettingsPatch
	if err := c.Bind(&patch); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := validateSettingsPatch(patch); err != nil {
		return err
	}

	settings, err := s.app.UpdateSettings(c.Request().Context(), patch)
	if err != nil {
		return apperrors.InternalError("failed to update settings", err)
	}
	return writeJSON(c, http.StatusOK, settings)
}

// Values are stored as text; only reject what the poller could never use.
func validateSettingsPatch(patch domain.SettingsPatch) error {
	if patch.PollingInterval != nil {
		if _, err := strconv.ParseFloat(*patch.PollingInterval, 64); err != nil {
			return apperrors.ValidationError("polling_interval must be a number of milliseconds").
				WithField("polling_interval", *patch.PollingInterval)
		}
	}
	if patch.NotificationsEnabled != nil {
		if v := *patch.NotificationsEnabled; v != "true" && v != "false" {
			return apperrors.ValidationError(`notifications_enabled must be "true" or "false"`).
				WithField("notifications_enabled", v)
		}
	}
	return nil
}
