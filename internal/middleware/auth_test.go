package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
)

func newAuthTestRouter(t *testing.T, clock func() time.Time) (*gin.Engine, *auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "authgate-test",
		Clock:         clock,
	})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/protected", RequireAuth(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userID":    c.GetString(CtxUserIDKey),
			"sessionID": c.GetString(CtxSessionIDKey),
		})
	})
	return r, tokens
}

func TestRequireAuthMissingToken(t *testing.T) {
	r, _ := newAuthTestRouter(t, time.Now)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Not authorized")
}

func TestRequireAuthCookie(t *testing.T) {
	r, tokens := newAuthTestRouter(t, time.Now)

	token, err := tokens.SignAccessToken("user-1", "session-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
	assert.Contains(t, w.Body.String(), "session-1")
}

func TestRequireAuthBearerFallback(t *testing.T) {
	r, tokens := newAuthTestRouter(t, time.Now)

	token, err := tokens.SignAccessToken("user-2", "session-2")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-2")
}

func TestRequireAuthExpiredToken(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	backdated, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "authgate-test",
		Clock:         func() time.Time { return past },
	})
	require.NoError(t, err)

	token, err := backdated.SignAccessToken("user-3", "session-3")
	require.NoError(t, err)

	// verify against the real clock, one hour after issuance
	rNow, _ := newAuthTestRouter(t, time.Now)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	rNow.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")
}

func TestRequireAuthGarbageToken(t *testing.T) {
	r, _ := newAuthTestRouter(t, time.Now)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "not-a-jwt"})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token")
}
