package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/authgate/authgate/internal/app"
	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/handlers"
	"github.com/authgate/authgate/internal/middleware"
	"github.com/authgate/authgate/internal/store"
)

// Deps carries the services the router wires into handlers.
type Deps struct {
	DB       *gorm.DB
	Store    *store.Store
	Tokens   *auth.TokenService
	Sessions *auth.SessionService
	Accounts *auth.AccountService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Deps) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil || deps.Store == nil {
		return nil, fmt.Errorf("database and store must be provided")
	}
	if deps.Tokens == nil || deps.Sessions == nil || deps.Accounts == nil {
		return nil, fmt.Errorf("auth services must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.AccessLog())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	if cfg.Server.RateLimit.Enabled {
		r.Use(middleware.RateLimit(cfg.Server.RateLimit.MaxRequests, cfg.Server.RateLimit.Window))
	}

	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(deps.DB))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Sessions, deps.Tokens, deps.Store, handlers.CookieConfig{
		Secure: cfg.Server.CookieSecure,
		Domain: cfg.Server.CookieDomain,
	})
	sessionHandler := handlers.NewSessionHandler(deps.Sessions)

	requireAuth := middleware.RequireAuth(deps.Tokens)

	// Public auth routes
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/logout", authHandler.Logout)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.GET("/email/verify/:code", authHandler.VerifyEmail)
		authGroup.POST("/password/forgot", authHandler.ForgotPassword)
		authGroup.POST("/password/reset", authHandler.ResetPassword)
	}

	r.GET("/auth/me", requireAuth, authHandler.Me)

	sessions := r.Group("/sessions")
	sessions.Use(requireAuth)
	{
		sessions.GET("", sessionHandler.List)
		sessions.DELETE("/:id", sessionHandler.Delete)
		sessions.POST("/revoke_all", sessionHandler.RevokeAll)
	}

	return r, nil
}
