// Package httpapi exposes the auth core over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/logging"
	"github.com/dmitrijs2005/cardflow/internal/server/metrics"
	"github.com/dmitrijs2005/cardflow/internal/server/models"
	"github.com/dmitrijs2005/cardflow/internal/server/probes"
	"github.com/dmitrijs2005/cardflow/internal/server/ratelimit"
	"github.com/dmitrijs2005/cardflow/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AuthService is the part of services.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResult, error)
	VerifyEmail(ctx context.Context, token string) (string, error)
	ResendVerification(ctx context.Context, email string) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)

	ValidateCredentials(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, user *models.User, userAgent, ip string) (*services.TokenResult, error)
	Request2FACode(ctx context.Context, tempToken string) (string, error)
	Verify2FA(ctx context.Context, tempToken, code, userAgent, ip string) (*services.TokenResult, error)
	RefreshWithToken(ctx context.Context, refreshToken, userAgent, ip string) (*services.TokenResult, error)
	Logout(ctx context.Context, userID, sessionID string) error
	Authenticate(ctx context.Context, accessToken string) (*services.Principal, error)

	CurrentUser(ctx context.Context, userID string) (*services.Profile, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (string, error)
	Enable2FA(ctx context.Context, userID string) (string, error)
	Disable2FA(ctx context.Context, userID, password string) (string, error)
	ListSessions(ctx context.Context, userID, currentSessionID string) ([]services.SessionInfo, error)
	RevokeSession(ctx context.Context, userID, sessionID string) (string, error)
	DeleteAccount(ctx context.Context, userID, password string) (string, error)
}

// RateLimiter counts hits per key in a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Result, error)
}

// Throttles per route. Routes without an entry are not limited.
var defaultThrottles = map[string]Throttle{
	"register":            {Limit: 3, Window: time.Hour},
	"login":               {Limit: 5, Window: time.Minute},
	"verify-2fa":          {Limit: 5, Window: 10 * time.Minute},
	"request-2fa-code":    {Limit: 3, Window: 10 * time.Minute},
	"resend-verification": {Limit: 3, Window: time.Hour},
	"forgot-password":     {Limit: 3, Window: time.Hour},
}

const shutdownTimeout = 10 * time.Second

type Options struct {
	Address         string
	Auth            AuthService
	Limiter         RateLimiter
	Probes          probes.Set
	Metrics         *metrics.Metrics
	Logger          logging.Logger
	ShutdownTimeout time.Duration

	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the peer address is always the client IP.
	TrustedProxies []string
}

type Server struct {
	address         string
	auth            AuthService
	limiter         RateLimiter
	probes          probes.Set
	metrics         *metrics.Metrics
	logger          logging.Logger
	shutdownTimeout time.Duration
	throttles       map[string]Throttle
	router          *gin.Engine
}

func NewServer(o Options) (*Server, error) {
	registerValidators()

	s := &Server{
		address:         o.Address,
		auth:            o.Auth,
		limiter:         o.Limiter,
		probes:          o.Probes,
		metrics:         o.Metrics,
		logger:          o.Logger,
		shutdownTimeout: o.ShutdownTimeout,
		throttles:       defaultThrottles,
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.With("module", "http_server")
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = shutdownTimeout
	}

	s.router = gin.New()
	if err := s.router.SetTrustedProxies(o.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	s.router.Use(gin.Recovery(), requestID(), requestLogger(s.logger))
	if s.metrics != nil {
		s.router.Use(observe(s.metrics))
	}
	s.router.NoRoute(func(c *gin.Context) { writeError(c, errRouteNotFound) })
	s.registerRoutes()
	return s, nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api/v1")

	a := api.Group("/auth")
	a.POST("/register", s.limit("register"), s.handleRegister)
	a.POST("/login", s.limit("login"), s.handleLogin)
	a.POST("/verify-2fa", s.limit("verify-2fa"), s.handleVerify2FA)
	a.POST("/request-2fa-code", s.limit("request-2fa-code"), s.handleRequest2FACode)
	a.POST("/refresh-token", s.handleRefresh)
	a.POST("/verify-email", s.handleVerifyEmail)
	a.POST("/resend-verification", s.limit("resend-verification"), s.handleResendVerification)
	a.POST("/forgot-password", s.limit("forgot-password"), s.handleForgotPassword)
	a.POST("/reset-password", s.handleResetPassword)

	bearer := bearerAuth(s.auth)
	a.POST("/logout", bearer, s.handleLogout)
	a.POST("/logout-all", bearer, s.handleLogoutAll)
	a.GET("/me", bearer, s.handleMe)

	me := api.Group("/users/me", bearer)
	me.PATCH("/password", s.handleChangePassword)
	me.POST("/2fa/enable", s.handleEnable2FA)
	me.POST("/2fa/disable", s.handleDisable2FA)
	me.GET("/sessions", s.handleListSessions)
	me.DELETE("/sessions", s.handleLogoutAll)
	me.DELETE("/sessions/:id", s.handleRevokeSession)
	me.DELETE("", s.handleDeleteAccount)
}

func (s *Server) limit(name string) gin.HandlerFunc {
	return s.throttle(name, s.throttles[name])
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
