package httpserver

import (
	"net/http"
	"strconv"

	"github.com/juicerq/witch/internal/app"
	apperrors "github.com/juicerq/witch/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerStreamRoutes() {
	s.echo.GET("/api/streams/followed", s.handleFollowedStreams)
	s.echo.GET("/api/streams/:channelId/history", s.handleStreamHistory)
	s.echo.GET("/api/streams/:channelId/stats", s.handleStreamerStats)
}

func (s *Server) handleFollowedStreams(c echo.Context) error {
	streams, err := s.app.GetFollowedStreams(c.Request().Context())
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, streams)
}

func (s *Server) handleStreamHistory(c echo.Context) error {
	channelID := c.Param("channelId")

	limit := app.DefaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > app.MaxHistoryLimit {
			return apperrors.ValidationError("limit must be between 1 and 100").WithField("limit", raw)
		}
		limit = n
	}

	history, err := s.app.GetStreamHistory(c.Request().Context(), channelID, limit)
	if err != nil {
		return apperrors.InternalError("failed to load stream history", err).WithField("channel_id", channelID)
	}
	return writeJSON(c, http.StatusOK, history)
}

func (s *Server) handleStreamerStats(c echo.Context) error {
	channelID := c.Param("channelId")

	stats, err := s.app.GetStreamerStats(c.Request().Context(), channelID)
	if err != nil {
		return apperrors.InternalError("failed to compute streamer stats", err).WithField("channel_id", channelID)
	}
	return writeJSON(c, http.StatusOK, stats)
}
