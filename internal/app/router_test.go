package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovr-admin/ovr-admin/internal/auth"
	"github.com/ovr-admin/ovr-admin/internal/authz"
	"github.com/ovr-admin/ovr-admin/internal/observability"
	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

type roleLookup map[string]roles.Role

func (l roleLookup) GetByName(ctx context.Context, name string) (roles.Role, error) {
	role, ok := l[name]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func testRouter(t *testing.T, health map[string]HealthChecker) (http.Handler, *auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier("router-secret", "")
	lookup := roleLookup{"USER": {ID: "r1", Name: "USER", Permissions: []permissions.Permission{{Name: "read:profile"}}}}
	metrics := observability.NewMetrics()
	engine := authz.NewEngine(authz.EngineConfig{Roles: lookup, Observer: metrics})
	router := NewRouter(RouterParams{
		Config:       &Config{AppRequestTimeout: time.Second},
		Metrics:      metrics,
		Authenticate: auth.NewMiddleware(verifier, nil).Handler,
		Guard:        authz.NewMiddleware(engine),
		AuthzHandler: authz.NewHandler(nil, engine, lookup),
		Health:       health,
	})
	return router, verifier
}

func TestHealthz(t *testing.T) {
	router, _ := testRouter(t, map[string]HealthChecker{
		"postgres": HealthFunc(func() error { return nil }),
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","postgres":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	router, _ = testRouter(t, map[string]HealthChecker{
		"redis": HealthFunc(func() error { return errors.New("down") }),
	})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"redis":"unavailable"`)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	router, verifier := testRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/authz/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := verifier.Issue(shared.Actor{ID: "u1", RoleName: "USER"}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/authz/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "read:profile")

	metrics := httptest.NewRecorder()
	router.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), `ovr_authz_decisions_total{outcome="allow",reason=""} 1`)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router, _ := testRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "application/problem+json"))
}
