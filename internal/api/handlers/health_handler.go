package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const checkTimeout = 2 * time.Second

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// HealthHandler reports service and dependency health.
type HealthHandler struct {
	checks map[string]Check
	logger *zap.Logger
}

// NewHealthHandler creates a new health handler. checks may be empty.
func NewHealthHandler(checks map[string]Check, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger,
	}
}

// Health answers 200 when every check passes and 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	results := make(gin.H, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(code, gin.H{"status": status, "checks": results})
}
