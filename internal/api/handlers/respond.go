// Package handlers provides HTTP request handlers.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"edu-ai-gateway/internal/api/middleware"
	"edu-ai-gateway/internal/repository"
	"edu-ai-gateway/internal/service/aiconfig"
	"edu-ai-gateway/internal/service/gateway"
	"edu-ai-gateway/internal/service/tutor"
	"edu-ai-gateway/internal/service/user"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// statusOf maps a service error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, tutor.ErrValidation),
		errors.Is(err, aiconfig.ErrValidation),
		errors.Is(err, user.ErrValidation),
		errors.Is(err, gateway.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, user.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvariantViolation):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err with its mapped status. Internal errors are
// logged and hidden from the client.
func abortWithError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return id, ok
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// parseDate reads a yyyy-mm-dd value. endOfDay moves it to the last instant
// of that day so the range is inclusive.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, errors.New("dates must use the yyyy-mm-dd format")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
