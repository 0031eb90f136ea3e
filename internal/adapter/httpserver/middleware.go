package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/juicerq/witch/internal/adapter/metrics"
	"github.com/juicerq/witch/internal/domain"
	"github.com/juicerq/witch/internal/platform/correlation"
	apperrors "github.com/juicerq/witch/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// ErrorHandlingMiddleware turns handler errors into JSON error responses and
// counts them by type. m may be nil.
func ErrorHandlingMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			if _, ok := errors.AsType[*echo.HTTPError](err); ok {
				return err
			}

			structuredErr := toStructuredError(err)
			logError(c, structuredErr)
			if m != nil {
				m.ErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			}

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// toStructuredError maps domain errors that reach the HTTP layer unwrapped
// onto their response type.
func toStructuredError(err error) *apperrors.Error {
	if structuredErr, ok := errors.AsType[*apperrors.Error](err); ok {
		return structuredErr
	}

	if errors.Is(err, domain.ErrInvalidAuthState) {
		return apperrors.ValidationError("invalid or expired state").WithField("retryable", true)
	}
	if errors.Is(err, domain.ErrFavoriteNotFound) {
		return apperrors.NotFoundError("favorite not found")
	}
	if errors.Is(err, domain.ErrTwitchNotConfigured) {
		return apperrors.UnavailableError("twitch credentials are not configured", err).WithField("setup_required", true)
	}
	if errors.Is(err, domain.ErrNotAuthenticated) {
		return apperrors.UnauthorizedError("not authenticated", err)
	}
	if refreshErr, ok := errors.AsType[*domain.TokenRefreshError](err); ok {
		return apperrors.UnauthorizedError("token refresh failed", err).WithField("revoked", refreshErr.Revoked)
	}
	if apiErr, ok := errors.AsType[*domain.UpstreamAPIError](err); ok {
		return apperrors.ExternalError("twitch api request failed", err).
			WithField("endpoint", apiErr.Endpoint).
			WithField("upstream_status", apiErr.Status)
	}

	return apperrors.AsStructuredError(err)
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeUnauthorized:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.WarnContext(ctx, "Unauthorized", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	case apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Service unavailable", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// WrapHTTPError converts an echo error into the structured form.
func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := "internal server error"
	if httpErr.Message != nil {
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest:
		errType = apperrors.TypeValidation
	case http.StatusUnauthorized:
		errType = apperrors.TypeUnauthorized
	case http.StatusNotFound:
		errType = apperrors.TypeNotFound
	case http.StatusConflict:
		errType = apperrors.TypeConflict
	case http.StatusBadGateway:
		errType = apperrors.TypeExternal
	case http.StatusServiceUnavailable:
		errType = apperrors.TypeUnavailable
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}

	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}

	return err
}

// handleHTTPError renders errors that never passed through
// ErrorHandlingMiddleware, like unknown routes or echo's own HTTP errors, in
// the same JSON shape. The original status code is kept.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	httpErr, ok := errors.AsType[*echo.HTTPError](err)
	if !ok {
		httpErr = echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}

	structuredErr := WrapHTTPError(httpErr)
	if httpErr.Code >= http.StatusInternalServerError {
		logError(c, structuredErr)
	}
	if s.httpMetrics != nil {
		s.httpMetrics.ErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
	}

	if err := c.JSON(httpErr.Code, structuredErr.ToResponse()); err != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to write error response", "error", err)
	}
}
