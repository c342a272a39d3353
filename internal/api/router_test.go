package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/app"
	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/database/testutil"
	"github.com/authgate/authgate/internal/store"
)

func newTestRouter(t *testing.T, mutate func(*app.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	st, err := store.New(db)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "authgate-test",
	})
	require.NoError(t, err)

	sessions, err := auth.NewSessionService(st, tokens, auth.SessionConfig{})
	require.NoError(t, err)

	accounts, err := auth.NewAccountService(st, sessions, nil, auth.AccountConfig{
		BaseURL: "http://localhost:8000",
	})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true
	cfg.Monitoring.Prometheus.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	router, err := NewRouter(cfg, Deps{
		DB:       db,
		Store:    st,
		Tokens:   tokens,
		Sessions: sessions,
		Accounts: accounts,
	})
	require.NoError(t, err)
	return router
}

func TestRouterUnknownRoute(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "route /nope not found")
}

func TestRouterSecurityHeaders(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRouterMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	disabled := newTestRouter(t, func(cfg *app.Config) {
		cfg.Monitoring.Prometheus.Enabled = false
	})
	w = httptest.NewRecorder()
	disabled.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterProtectedRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/sessions"},
		{http.MethodDelete, "/sessions/some-id"},
		{http.MethodPost, "/sessions/revoke_all"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestRouterRequiresDeps(t *testing.T) {
	_, err := NewRouter(nil, Deps{})
	require.Error(t, err)

	_, err = NewRouter(&app.Config{}, Deps{})
	require.Error(t, err)
}

func TestRouterRateLimit(t *testing.T) {
	r := newTestRouter(t, func(cfg *app.Config) {
		cfg.Server.RateLimit.Enabled = true
		cfg.Server.RateLimit.MaxRequests = 2
		cfg.Server.RateLimit.Window = time.Minute
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}
