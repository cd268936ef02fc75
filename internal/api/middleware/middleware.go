// Package middleware provides HTTP middleware functions.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"edu-ai-gateway/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Context keys set by JWT.
const (
	KeyUserID = "user_id"
	KeyEmail  = "email"
	KeyRole   = "role"
)

// AuthMiddleware handles JWT authentication.
type AuthMiddleware struct {
	jwtSecret []byte
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(cfg *config.JWTConfig, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: []byte(cfg.Secret),
		logger:    logger,
	}
}

// JWT validates the bearer token in the Authorization header.
func (m *AuthMiddleware) JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}
		sub, _ := claims["sub"].(string)
		if _, err := uuid.Parse(sub); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}

		c.Set(KeyUserID, sub)
		c.Set(KeyEmail, claims["email"])
		c.Set(KeyRole, claims["role"])
		c.Next()
	}
}

// UserID returns the authenticated user's ID.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get(KeyUserID)
	if !ok {
		return uuid.Nil, false
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// RateLimitRecorder counts rejected requests.
type RateLimitRecorder interface {
	RecordRateLimited()
}

// RateLimiter is a fixed-window per-user request limiter backed by Redis.
type RateLimiter struct {
	client            redis.Cmdable
	requestsPerMinute int
	windowDuration    time.Duration
	recorder          RateLimitRecorder
	logger            *zap.Logger
	now               func() time.Time
}

// NewRateLimiter creates a new rate limiter. recorder may be nil.
func NewRateLimiter(client redis.Cmdable, requestsPerMinute int, recorder RateLimitRecorder, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client:            client,
		requestsPerMinute: requestsPerMinute,
		windowDuration:    time.Minute,
		recorder:          recorder,
		logger:            logger,
		now:               time.Now,
	}
}

// Limit rejects a user's requests beyond the per-window allowance with 429.
// Requests pass when Redis is unreachable.
func (r *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString(KeyUserID)
		if subject == "" {
			subject = c.ClientIP()
		}

		window := r.now().Truncate(r.windowDuration)
		key := fmt.Sprintf("ratelimit:%s:%d", subject, window.Unix())

		var incr *redis.IntCmd
		_, err := r.client.TxPipelined(c.Request.Context(), func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(c.Request.Context(), key)
			pipe.Expire(c.Request.Context(), key, r.windowDuration)
			return nil
		})
		if err != nil {
			r.logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		count := incr.Val()
		remaining := int64(r.requestsPerMinute) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(r.requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(r.requestsPerMinute) {
			retry := window.Add(r.windowDuration).Sub(r.now())
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			if r.recorder != nil {
				r.recorder.RecordRateLimited()
			}
			r.logger.Info("rate limited", zap.String("subject", subject), zap.Int64("count", count))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "请求过于频繁，请稍后再试",
				"error":   "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// HTTPRecorder observes finished requests.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics records every request under its route pattern.
func Metrics(recorder HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		recorder.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// LoggingMiddleware provides request logging.
type LoggingMiddleware struct {
	logger *zap.Logger
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Log logs request details.
func (m *LoggingMiddleware) Log() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := c.GetString(KeyUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		m.logger.Info("request", fields...)
	}
}

// CORSMiddleware handles CORS headers.
type CORSMiddleware struct {
	allowOrigins []string
}

// NewCORSMiddleware creates a new CORS middleware.
func NewCORSMiddleware(origins []string) *CORSMiddleware {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &CORSMiddleware{allowOrigins: origins}
}

// Handle adds CORS headers.
func (m *CORSMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		for _, o := range m.allowOrigins {
			if o == "*" {
				c.Header("Access-Control-Allow-Origin", "*")
				break
			}
			if o == origin {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				break
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RecoveryMiddleware handles panic recovery.
type RecoveryMiddleware struct {
	logger *zap.Logger
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger *zap.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger}
}

// Recover turns a panic into a 500.
func (m *RecoveryMiddleware) Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// AdminOnly restricts access to admin users.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(KeyRole)
		if !exists || role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
