package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/repository"
	"edu-ai-gateway/internal/service/calllog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultUsageWindow = 30 * 24 * time.Hour

// UsageService aggregates call records.
type UsageService interface {
	GetSummary(ctx context.Context, userID *uuid.UUID, from, to time.Time) (*calllog.UsageSummary, error)
	GetDailyUsage(ctx context.Context, userID *uuid.UUID, days int) ([]calllog.DailyUsage, error)
	GetUsageByProvider(ctx context.Context, from, to time.Time) ([]calllog.GroupUsage, error)
	GetUsageByFunction(ctx context.Context, from, to time.Time) ([]calllog.GroupUsage, error)
	GetRecent(ctx context.Context, filter repository.CallRecordFilter, limit int) ([]models.CallRecord, error)
}

// DashboardHandler serves usage statistics.
type DashboardHandler struct {
	usage  UsageService
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(usage UsageService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		usage:  usage,
		logger: logger,
		now:    time.Now,
	}
}

// GetMySummary returns the caller's usage over the last days days (default 30).
func (h *DashboardHandler) GetMySummary(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}
	to := h.now()
	from := to.AddDate(0, 0, -days)

	summary, err := h.usage.GetSummary(c.Request.Context(), &userID, from, to)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetSummary returns platform usage, optionally for one user_id.
func (h *DashboardHandler) GetSummary(c *gin.Context) {
	from, to, ok := h.window(c)
	if !ok {
		return
	}
	userID, ok := optionalUser(c)
	if !ok {
		return
	}

	summary, err := h.usage.GetSummary(c.Request.Context(), userID, from, to)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetDaily returns per-day usage for the last days days (default 7).
func (h *DashboardHandler) GetDaily(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 || days > 366 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 366"})
		return
	}
	userID, ok := optionalUser(c)
	if !ok {
		return
	}

	daily, err := h.usage.GetDailyUsage(c.Request.Context(), userID, days)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": daily})
}

// GetByProvider groups usage by provider.
func (h *DashboardHandler) GetByProvider(c *gin.Context) {
	from, to, ok := h.window(c)
	if !ok {
		return
	}
	groups, err := h.usage.GetUsageByProvider(c.Request.Context(), from, to)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": groups})
}

// GetByFunction groups usage by function tag.
func (h *DashboardHandler) GetByFunction(c *gin.Context) {
	from, to, ok := h.window(c)
	if !ok {
		return
	}
	groups, err := h.usage.GetUsageByFunction(c.Request.Context(), from, to)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": groups})
}

// GetRecent lists the newest call records.
func (h *DashboardHandler) GetRecent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	userID, ok := optionalUser(c)
	if !ok {
		return
	}

	filter := repository.CallRecordFilter{
		UserID:   userID,
		Provider: c.Query("provider"),
		Tag:      models.FunctionTag(c.Query("function")),
	}
	if filter.Tag != "" && !filter.Tag.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown function tag"})
		return
	}

	records, err := h.usage.GetRecent(c.Request.Context(), filter, limit)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

// window reads start_date and end_date, defaulting to the last 30 days.
func (h *DashboardHandler) window(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := parseDate(c.Query("start_date"), false)
	if err != nil {
		badRequest(c, err)
		return time.Time{}, time.Time{}, false
	}
	to, err := parseDate(c.Query("end_date"), true)
	if err != nil {
		badRequest(c, err)
		return time.Time{}, time.Time{}, false
	}
	if to.IsZero() {
		to = h.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultUsageWindow)
	}
	if from.After(to) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "start_date is after end_date"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func optionalUser(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("user_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return nil, false
	}
	return &id, true
}
