package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Name() string                    { return f.name }
func (f fakeChecker) Check(ctx context.Context) error { return f.err }

func TestHandleHealth_AllHealthyIsOK(t *testing.T) {
	t.Parallel()
	srv := NewServer(Deps{HealthCheckers: []HealthChecker{fakeChecker{name: "postgres"}}, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleHealth_OneFailingDependencyIsDegradedButStill200(t *testing.T) {
	t.Parallel()
	srv := NewServer(Deps{HealthCheckers: []HealthChecker{
		fakeChecker{name: "postgres"},
		fakeChecker{name: "qdrant", err: assert.AnError},
	}, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health must always return 200 even when a dependency is unhealthy")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestHandleWhoami_ReturnsResolvedVisibility(t *testing.T) {
	t.Parallel()
	srv := NewServer(Deps{TenantsByToken: map[string]string{"tok": "acme"}, Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("X-Workspace-Id", "ws-1")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "acme", body["tenant_id"])
	assert.Equal(t, "ws-1", body["workspace_id"])
	assert.Nil(t, body["principal_id"])
}

func TestHandleWhoami_RejectsMissingToken(t *testing.T) {
	t.Parallel()
	srv := NewServer(Deps{TenantsByToken: map[string]string{"tok": "acme"}, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
