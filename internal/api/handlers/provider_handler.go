package handlers

import (
	"context"
	"net/http"

	"edu-ai-gateway/internal/api/middleware"
	"edu-ai-gateway/internal/service/aiconfig"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProviderAdmin is the provider configuration surface.
type ProviderAdmin interface {
	List(ctx context.Context) ([]aiconfig.ProviderView, error)
	Get(ctx context.Context, id uuid.UUID) (*aiconfig.ProviderView, error)
	Create(ctx context.Context, in aiconfig.CreateInput) (*aiconfig.ProviderView, error)
	Update(ctx context.Context, id uuid.UUID, in aiconfig.UpdateInput) (*aiconfig.ProviderView, error)
	SetDefault(ctx context.Context, id uuid.UUID) (*aiconfig.ProviderView, error)
	ToggleActive(ctx context.Context, id uuid.UUID) (*aiconfig.ProviderView, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Test(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (*aiconfig.ProbeResult, error)
	ProbeAll(ctx context.Context) ([]aiconfig.ProbeResult, error)
}

// ProviderHandler handles provider administration endpoints.
type ProviderHandler struct {
	admin  ProviderAdmin
	logger *zap.Logger
}

// NewProviderHandler creates a new provider handler.
func NewProviderHandler(admin ProviderAdmin, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		admin:  admin,
		logger: logger,
	}
}

// List returns every provider config.
func (h *ProviderHandler) List(c *gin.Context) {
	views, err := h.admin.List(c.Request.Context())
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

// Get returns one provider config.
func (h *ProviderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.admin.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Create adds a provider config.
func (h *ProviderHandler) Create(c *gin.Context) {
	var req aiconfig.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.admin.Create(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Update edits a provider config.
func (h *ProviderHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req aiconfig.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.admin.Update(c.Request.Context(), id, req)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete removes a provider config.
func (h *ProviderHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.admin.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "provider deleted"})
}

// SetDefault makes a provider the default.
func (h *ProviderHandler) SetDefault(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.admin.SetDefault(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Toggle flips whether a provider is active.
func (h *ProviderHandler) Toggle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.admin.ToggleActive(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Test sends a connectivity prompt to one provider.
func (h *ProviderHandler) Test(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var caller *uuid.UUID
	if uid, ok := middleware.UserID(c); ok {
		caller = &uid
	}

	res, err := h.admin.Test(c.Request.Context(), id, caller)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Probe tests every active provider.
func (h *ProviderHandler) Probe(c *gin.Context) {
	results, err := h.admin.ProbeAll(c.Request.Context())
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	healthy := 0
	for _, r := range results {
		if r.Success {
			healthy++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":    results,
		"total":   len(results),
		"healthy": healthy,
	})
}
