package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/middleware"
	"github.com/authgate/authgate/internal/models"
	"github.com/authgate/authgate/internal/store"
	apperrors "github.com/authgate/authgate/pkg/errors"
	"github.com/authgate/authgate/pkg/metrics"
	"github.com/authgate/authgate/pkg/response"
)

// AuthHandler manages the authentication flows: register, login, logout,
// refresh, email verification, and the password-reset pair.
type AuthHandler struct {
	accounts *auth.AccountService
	sessions *auth.SessionService
	tokens   *auth.TokenService
	store    *store.Store
	cookies  cookieWriter
}

func NewAuthHandler(accounts *auth.AccountService, sessions *auth.SessionService, tokens *auth.TokenService, st *store.Store, cookies CookieConfig) *AuthHandler {
	if cookies.AccessTTL <= 0 {
		cookies.AccessTTL = tokens.AccessTokenTTL()
	}
	if cookies.RefreshTTL <= 0 {
		cookies.RefreshTTL = tokens.RefreshTokenTTL()
	}
	return &AuthHandler{
		accounts: accounts,
		sessions: sessions,
		tokens:   tokens,
		store:    st,
		cookies:  cookieWriter{cfg: cookies},
	}
}

type registerRequest struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Verified  bool   `json:"verified"`
	CreatedAt string `json:"createdAt"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.accounts.Register(requestContext(c), req.Email, req.Password, c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.setAuthCookies(c, result.Tokens.AccessToken, result.Tokens.RefreshToken)
	response.Success(c, http.StatusCreated, gin.H{"user": newUserResponse(result.User)})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.accounts.Login(requestContext(c), req.Email, req.Password, c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.setAuthCookies(c, result.Tokens.AccessToken, result.Tokens.RefreshToken)
	response.Success(c, http.StatusOK, gin.H{"message": "Login successful"})
}

// Logout tears down the session named by the access token cookie. It always
// succeeds from the caller's perspective: a missing or invalid token still
// clears the cookies and returns 200.
func (h *AuthHandler) Logout(c *gin.Context) {
	if cookie, err := c.Cookie(middleware.AccessTokenCookie); err == nil && cookie != "" {
		if claims, err := h.tokens.VerifyAccessToken(cookie); err == nil {
			if err := h.sessions.Delete(requestContext(c), claims.SessionID); err != nil {
				response.Error(c, err)
				return
			}
		}
	}

	h.cookies.clearAuthCookies(c)
	response.Success(c, http.StatusOK, gin.H{"message": "Logout successful"})
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	cookie, err := c.Cookie(RefreshTokenCookie)
	if err != nil || cookie == "" {
		metrics.AuthAttempts.WithLabelValues("refresh", "failure").Inc()
		response.Error(c, apperrors.New("MISSING_REFRESH_TOKEN", "Missing refresh token", http.StatusUnauthorized))
		return
	}

	result, err := h.sessions.Refresh(requestContext(c), cookie)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("refresh", "failure").Inc()
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	metrics.AuthAttempts.WithLabelValues("refresh", "success").Inc()
	h.cookies.setAuthCookies(c, result.AccessToken, result.RefreshToken)
	response.Success(c, http.StatusOK, gin.H{"message": "Access token refreshed"})
}

// GET /auth/email/verify/:code
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	user, err := h.accounts.VerifyEmail(requestContext(c), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Email was successfully verified",
		"user":    newUserResponse(user),
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /auth/password/forgot
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.RequestPasswordReset(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password reset email sent"})
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6,max=72"`
	Code     string `json:"code" validate:"required"`
}

// ResetPassword consumes a reset code and clears the auth cookies, since
// every session of the user is revoked as part of the reset.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ResetPassword(requestContext(c), req.Password, req.Code); err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.clearAuthCookies(c)
	response.Success(c, http.StatusOK, gin.H{"message": "Password was successfully reset"})
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.store.UserByID(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": newUserResponse(user)})
}
