package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func limitedRequest(handler echo.HandlerFunc, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/setup/validate", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	_ = handler(echo.New().NewContext(req, rec))
	return rec.Code
}

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	handler := newRateLimiter(0.01, 2)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, limitedRequest(handler, "10.0.0.1:4000"))
	assert.Equal(t, http.StatusNoContent, limitedRequest(handler, "10.0.0.1:4001"))
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(handler, "10.0.0.1:4002"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	handler := newRateLimiter(0.01, 1)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, limitedRequest(handler, "10.0.0.1:4000"))
	assert.Equal(t, http.StatusNoContent, limitedRequest(handler, "10.0.0.2:4000"))
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(handler, "10.0.0.1:4000"))
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	for range authBurst {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/auth/login-url", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/auth/login-url", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Status polling from the UI is not limited.
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
