package httpapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/logging"
	"github.com/dmitrijs2005/cardflow/internal/server/metrics"
	"github.com/dmitrijs2005/cardflow/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey = "requestID"
	principalKey = "principal"

	requestIDHeader = "X-Request-ID"
)

// requestID propagates the caller's request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs HTTP request/response metadata.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"client_ip", c.ClientIP(),
			"latency", time.Since(start).String(),
			"request_id", c.GetString(requestIDKey),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.Last().Error())
		}

		if status >= 500 {
			logger.Error(c.Request.Context(), "http request", args...)
			return
		}
		logger.Info(c.Request.Context(), "http request", args...)
	}
}

// observe records request counts and latency per route template.
func observe(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// bearerAuth resolves the Authorization header to a principal.
func bearerAuth(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, services.ErrInvalidAccessToken)
			return
		}

		p, err := svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func principal(c *gin.Context) *services.Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(*services.Principal)
	return p
}

// Throttle is a per-route fixed-window budget.
type Throttle struct {
	Limit  int
	Window time.Duration
}

var errRateLimited = common.NewError(common.ErrorRateLimited, common.CodeRateLimited, "rate limit exceeded")

// throttle applies t per client IP. A failing limiter lets the request
// through.
func (s *Server) throttle(name string, t Throttle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:%s", name, c.ClientIP())
		res, err := s.limiter.Allow(c.Request.Context(), key, t.Limit, t.Window)
		if err != nil {
			s.logger.Warn(c.Request.Context(), "rate limiter unavailable", "route", name, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(t.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(res.ResetIn.Round(time.Second)/time.Second)))
			writeError(c, errRateLimited)
			return
		}
		c.Next()
	}
}
