package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/config"
	"github.com/Gopher0727/InterviewRoom/middleware/jwt"
	logger "github.com/Gopher0727/InterviewRoom/middleware/log"
	"github.com/Gopher0727/InterviewRoom/utils/ratelimit"
)

const (
	ctxUserID   = "user_id"
	ctxUserName = "user_name"

	HeaderRequestID = "X-Request-ID"
)

type MiddlewareManager struct {
	tokenManager *jwt.TokenManager
	rateLimiter  ratelimit.Limiter
	logger       *zap.Logger
	rateLimitCfg *config.RateLimitConfig
}

func NewMiddlewareManager(
	tokenManager *jwt.TokenManager,
	rateLimiter ratelimit.Limiter,
	logger *zap.Logger,
	rateLimitCfg *config.RateLimitConfig,
) *MiddlewareManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MiddlewareManager{
		tokenManager: tokenManager,
		rateLimiter:  rateLimiter,
		logger:       logger,
		rateLimitCfg: rateLimitCfg,
	}
}

// JWTAuth requires a valid bearer token and stores the caller identity in
// the gin context.
func (m *MiddlewareManager) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := jwt.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		claims, err := m.tokenManager.Parse(token)
		if err != nil {
			logger.Ctx(c.Request.Context(), m.logger).Warn("token validation failed",
				zap.Error(err),
				zap.String("ip", c.ClientIP()))

			message := "invalid token"
			switch {
			case errors.Is(err, jwt.ErrExpiredToken):
				message = "token has expired"
			case errors.Is(err, jwt.ErrTokenNotYetValid):
				message = "token not yet valid"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUserName, claims.UserName)
		c.Next()
	}
}

// RateLimit applies the budget of endpoint, keyed by user when known and by
// client ip otherwise. Guest endpoints have no user, so they count per ip.
func (m *MiddlewareManager) RateLimit(endpoint ratelimit.Endpoint) gin.HandlerFunc {
	if m.rateLimiter == nil || m.rateLimitCfg == nil || !m.rateLimitCfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	rule := ratelimit.RuleFor(endpoint, m.rateLimitCfg)

	return func(c *gin.Context) {
		var key string
		if userID := c.GetString(ctxUserID); userID != "" {
			key = fmt.Sprintf("user:%s:%s", userID, endpoint)
		} else {
			key = fmt.Sprintf("ip:%s:%s", c.ClientIP(), endpoint)
		}

		allowed, err := m.rateLimiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			logger.Ctx(c.Request.Context(), m.logger).Error("rate limit check failed",
				zap.Error(err),
				zap.String("key", key))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
			return
		}
		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(rule.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": int(rule.Window.Seconds()),
			})
			return
		}
		c.Next()
	}
}

// MaxConcurrency caps in-flight requests and rejects the overflow with 503.
func (m *MiddlewareManager) MaxConcurrency(maxConcurrent int) gin.HandlerFunc {
	if maxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "too many concurrent requests",
			})
		}
	}
}

// Trace attaches a request id to the request context and echoes it back.
func (m *MiddlewareManager) Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.WithTraceID(c.Request.Context(), c.GetHeader(HeaderRequestID))
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, logger.GetTraceID(ctx))
		c.Next()
	}
}

func (m *MiddlewareManager) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if userID := c.GetString(ctxUserID); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		log := logger.Ctx(c.Request.Context(), m.logger)
		switch {
		case statusCode >= 500:
			log.Error("server error", fields...)
		case statusCode >= 400:
			log.Warn("client error", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}

func (m *MiddlewareManager) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID, accept, origin, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		h.Set("Access-Control-Expose-Headers", HeaderRequestID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (m *MiddlewareManager) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Ctx(c.Request.Context(), m.logger).Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
