package httpserver

import (
	"net/http"

	apperrors "github.com/juicerq/witch/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

type toggleFavoriteRequest struct {
	ChannelID    string `json:"channel_id"`
	ChannelLogin string `json:"channel_login"`
	ChannelName  string `json:"channel_name"`
}

type setNotifyRequest struct {
	Notify *bool `json:"notify"`
}

func (s *Server) registerFavoriteRoutes() {
	s.echo.GET("/api/favorites", s.handleListFavorites)
	s.echo.POST("/api/favorites/toggle", s.handleToggleFavorite)
	s.echo.PUT("/api/favorites/:channelId/notify", s.handleSetFavoriteNotify)
}

func (s *Server) handleListFavorites(c echo.Context) error {
	favorites, err := s.app.ListFavorites(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list favorites", err)
	}
	return writeJSON(c, http.StatusOK, favorites)
}

func (s *Server) handleToggleFavorite(c echo.Context) error {
	var req toggleFavoriteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.ChannelID == "" || req.ChannelLogin == "" {
		return apperrors.ValidationError("channel_id and channel_login are required")
	}

	isFavorite, err := s.app.ToggleFavorite(c.Request().Context(), req.ChannelID, req.ChannelLogin, req.ChannelName)
	if err != nil {
		return apperrors.InternalError("failed to toggle favorite", err).WithField("channel_id", req.ChannelID)
	}
	return writeJSON(c, http.StatusOK, map[string]bool{"is_favorite": isFavorite})
}

func (s *Server) handleSetFavoriteNotify(c echo.Context) error {
	channelID := c.Param("channelId")

	var req setNotifyRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Notify == nil {
		return apperrors.ValidationError("notify is required")
	}

	favorite, err := s.app.SetFavoriteNotify(c.Request().Context(), channelID, *req.Notify)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, favorite)
}
