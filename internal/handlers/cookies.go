package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/authgate/authgate/internal/middleware"
)

const (
	// RefreshTokenCookie is scoped to the refresh endpoint so browsers only
	// send the long-lived token where it is needed.
	RefreshTokenCookie = "refreshToken"

	refreshCookiePath = "/auth/refresh"
)

// CookieConfig controls the attributes of the auth cookies.
type CookieConfig struct {
	// Secure should only be false for local development over plain HTTP.
	Secure     bool
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type cookieWriter struct {
	cfg CookieConfig
}

func (w cookieWriter) setAuthCookies(c *gin.Context, accessToken, refreshToken string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, accessToken,
		int(w.cfg.AccessTTL.Seconds()), "/", w.cfg.Domain, w.cfg.Secure, true)
	if refreshToken != "" {
		c.SetCookie(RefreshTokenCookie, refreshToken,
			int(w.cfg.RefreshTTL.Seconds()), refreshCookiePath, w.cfg.Domain, w.cfg.Secure, true)
	}
}

func (w cookieWriter) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", w.cfg.Domain, w.cfg.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, refreshCookiePath, w.cfg.Domain, w.cfg.Secure, true)
}
