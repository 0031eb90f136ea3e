package httpserver

import (
	"net/http"

	"github.com/juicerq/witch/internal/domain"
	apperrors "github.com/juicerq/witch/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerSetupRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/api/setup/status", s.handleSetupStatus)
	s.echo.POST("/api/setup/validate", s.handleSetupValidate, rateLimiter)
	s.echo.POST("/api/setup/save", s.handleSetupSave)
}

func (s *Server) handleSetupStatus(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.setup.Status())
}

func (s *Server) handleSetupValidate(c echo.Context) error {
	var input domain.SetupInput
	if err := c.Bind(&input); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	return writeJSON(c, http.StatusOK, s.setup.Validate(c.Request().Context(), input))
}

func (s *Server) handleSetupSave(c echo.Context) error {
	var input domain.SetupInput
	if err := c.Bind(&input); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	path, err := s.setup.Save(input)
	if err != nil {
		return apperrors.InternalError("failed to save setup", err)
	}
	return writeJSON(c, http.StatusOK, map[string]string{"env_path": path})
}
