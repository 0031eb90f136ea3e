package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestProbes_AllHealthy(t *testing.T) {
	srv := newTestServer(t, &mockAppService{},
		withHealthChecks(
			HealthCheck{Name: "postgres", Check: healthOK},
			HealthCheck{Name: "redis", Check: healthOK},
		),
	)

	for _, path := range []string{"/health/startup", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"status":"ready","checks":["postgres","redis"]}`, rec.Body.String())
		})
	}
}

func TestProbes_NoChecksConfigured(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":[]}`, rec.Body.String())
}

func TestProbes_FirstFailureWins(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantFailed string
		wantError  string
	}{
		{
			name: "postgres down",
			checks: []HealthCheck{
				{Name: "postgres", Check: healthErr("database unreachable")},
				{Name: "redis", Check: healthErr("connection refused")},
			},
			wantFailed: "postgres",
			wantError:  "database unreachable",
		},
		{
			name: "redis down",
			checks: []HealthCheck{
				{Name: "postgres", Check: healthOK},
				{Name: "redis", Check: healthErr("connection refused")},
			},
			wantFailed: "redis",
			wantError:  "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockAppService{}, withHealthChecks(tt.checks...))

			rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "unhealthy", body["status"])
			assert.Equal(t, tt.wantFailed, body["failed_check"])
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestProbes_CheckReceivesDeadline(t *testing.T) {
	var hadDeadline bool
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(HealthCheck{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			return nil
		},
	}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/startup", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hadDeadline)
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(HealthCheck{Name: "postgres", Check: healthErr("down")}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"go_version"`)
}
