package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/authgate/authgate/internal/auth"
	apperrors "github.com/authgate/authgate/pkg/errors"
	"github.com/authgate/authgate/pkg/response"
)

const (
	// AccessTokenCookie is the cookie the browser sends on every API call.
	AccessTokenCookie = "accessToken"

	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// RequireAuth gates a route group behind a valid access token. The token is
// read from the accessToken cookie first, then from a Bearer header, so both
// browser and non-browser clients work.
func RequireAuth(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAccessToken(c)
		if token == "" {
			response.Error(c, apperrors.ErrAccessTokenMissing)
			c.Abort()
			return
		}

		claims, err := tokens.VerifyAccessToken(token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			if errors.Is(err, auth.ErrTokenExpired) {
				response.Error(c, apperrors.ErrAccessTokenExpired)
			} else {
				response.Error(c, apperrors.ErrAccessTokenInvalid)
			}
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxSessionIDKey, claims.SessionID)

		c.Next()
	}
}

func extractAccessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}

	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}
