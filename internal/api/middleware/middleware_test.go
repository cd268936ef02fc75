package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edu-ai-gateway/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func jwtRouter() *gin.Engine {
	auth := NewAuthMiddleware(&config.JWTConfig{Secret: testSecret}, zap.NewNop())
	router := gin.New()
	router.Use(auth.JWT())
	router.GET("/me", func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.String()+" "+c.GetString(KeyRole))
	})
	return router
}

func TestJWT(t *testing.T) {
	userID := uuid.New()
	valid := jwt.MapClaims{
		"sub":  userID.String(),
		"role": "student",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), valid), wantStatus: http.StatusOK},
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "Token abc", wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), valid), wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		}), wantStatus: http.StatusUnauthorized},
		{name: "bad subject", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "42",
			"exp": time.Now().Add(time.Hour).Unix(),
		}), wantStatus: http.StatusUnauthorized},
		{name: "none alg", header: "Bearer " + signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid), wantStatus: http.StatusUnauthorized},
	}

	router := jwtRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, userID.String()+" student", w.Body.String())
			}
		})
	}
}

type countingRecorder struct {
	limited int
	paths   []string
	status  []int
}

func (r *countingRecorder) RecordRateLimited() { r.limited++ }

func (r *countingRecorder) RecordHTTPRequest(_ string, path string, status int, _ time.Duration) {
	r.paths = append(r.paths, path)
	r.status = append(r.status, status)
}

func limitedRouter(limiter *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(KeyUserID, uid)
		}
		c.Next()
	})
	router.Use(limiter.Limit())
	router.POST("/ai", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func hit(router *gin.Engine, user string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/ai", nil)
	req.Header.Set("X-Test-User", user)
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rec := &countingRecorder{}
	limiter := NewRateLimiter(client, 2, rec, zap.NewNop())
	limiter.now = func() time.Time { return time.Date(2026, 5, 1, 9, 30, 15, 0, time.UTC) }
	router := limitedRouter(limiter)

	assert.Equal(t, http.StatusOK, hit(router, "alice").Code)
	w := hit(router, "alice")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = hit(router, "alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "46", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
	assert.Equal(t, 1, rec.limited)

	assert.Equal(t, http.StatusOK, hit(router, "bob").Code)

	key := "ratelimit:alice:" + "1777627800"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	limiter.now = func() time.Time { return time.Date(2026, 5, 1, 9, 31, 0, 0, time.UTC) }
	assert.Equal(t, http.StatusOK, hit(router, "alice").Code)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	router := limitedRouter(NewRateLimiter(client, 1, nil, zap.NewNop()))
	assert.Equal(t, http.StatusOK, hit(router, "alice").Code)
	assert.Equal(t, http.StatusOK, hit(router, "alice").Code)
}

func TestMetrics(t *testing.T) {
	rec := &countingRecorder{}
	router := gin.New()
	router.Use(Metrics(rec))
	router.GET("/api/error-records/:id", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	for _, path := range []string{"/api/error-records/1", "/nowhere"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
	}

	assert.Equal(t, []string{"/api/error-records/:id", "unmatched"}, rec.paths)
	assert.Equal(t, []int{http.StatusAccepted, http.StatusNotFound}, rec.status)
}

func TestLoggingMiddlewareLog(t *testing.T) {
	router := gin.New()
	router.Use(NewLoggingMiddleware(zap.NewNop()).Log())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
	}{
		{name: "wildcard", origins: nil, origin: "http://localhost:3000", wantHeader: "*"},
		{name: "listed origin", origins: []string{"http://localhost:3000"}, origin: "http://localhost:3000", wantHeader: "http://localhost:3000"},
		{name: "unlisted origin", origins: []string{"http://localhost:3000"}, origin: "http://evil.test", wantHeader: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(NewCORSMiddleware(tt.origins).Handle())
			router.POST("/test", func(c *gin.Context) {
				c.String(http.StatusOK, "ok")
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodOptions, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(NewRecoveryMiddleware(zap.NewNop()).Recover())
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminOnly(t *testing.T) {
	for role, want := range map[string]int{"admin": http.StatusOK, "teacher": http.StatusForbidden, "": http.StatusForbidden} {
		t.Run("role "+role, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if role != "" {
					c.Set(KeyRole, role)
				}
				c.Next()
			})
			router.Use(AdminOnly())
			router.GET("/admin", func(c *gin.Context) {
				c.String(http.StatusOK, "ok")
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, want, w.Code)
		})
	}
}
