package handlers

import (
	"context"
	"net/http"
	"strconv"

	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/repository"
	"edu-ai-gateway/internal/service/tutor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TutorService is the tutoring surface behind the AI endpoints.
type TutorService interface {
	GenerateExercise(ctx context.Context, userID uuid.UUID, req tutor.ExerciseRequest) (*tutor.ExerciseResult, error)
	GenerateAnalysis(ctx context.Context, userID uuid.UUID, req tutor.AnalysisRequest) (*tutor.Outcome, error)
	AnalyzeErrors(ctx context.Context, userID uuid.UUID, req tutor.ReportRequest) (*tutor.ReportResult, error)
	CorrectPhoto(ctx context.Context, userID uuid.UUID, req tutor.PhotoRequest) (*tutor.PhotoResult, error)
	TestConnection(ctx context.Context, userID uuid.UUID, providerName string) (*tutor.ConnectionResult, error)
	ListErrorRecords(ctx context.Context, userID uuid.UUID, filter repository.ErrorRecordFilter) ([]models.ErrorRecord, error)
	ResolveErrorRecord(ctx context.Context, userID, id uuid.UUID) error
}

// AIHandler serves the tutoring AI endpoints. AI-layer failures are answered
// with 200 and success=false; only request and configuration problems change
// the status code.
type AIHandler struct {
	tutor  TutorService
	logger *zap.Logger
}

// NewAIHandler creates a new AI handler.
func NewAIHandler(t TutorService, logger *zap.Logger) *AIHandler {
	return &AIHandler{
		tutor:  t,
		logger: logger,
	}
}

// GenerateExercise handles POST /api/ai/generate-exercise.
func (h *AIHandler) GenerateExercise(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req tutor.ExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.tutor.GenerateExercise(c.Request.Context(), userID, req)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GenerateAnalysis handles POST /api/ai/generate-analysis.
func (h *AIHandler) GenerateAnalysis(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req tutor.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.tutor.GenerateAnalysis(c.Request.Context(), userID, req)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ReportBody is the JSON form of a learning report request.
type ReportBody struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Subject   string `json:"subject"`
	Provider  string `json:"provider"`
}

// AnalyzeErrors handles POST /api/ai/analyze-errors.
func (h *AIHandler) AnalyzeErrors(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var body ReportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	from, err := parseDate(body.StartDate, false)
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := parseDate(body.EndDate, true)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.tutor.AnalyzeErrors(c.Request.Context(), userID, tutor.ReportRequest{
		From:     from,
		To:       to,
		Subject:  body.Subject,
		Provider: body.Provider,
	})
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PhotoCorrection handles POST /api/ai/photo-correction.
func (h *AIHandler) PhotoCorrection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req tutor.PhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.tutor.CorrectPhoto(c.Request.Context(), userID, req)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// TestConnection handles GET /api/ai/test-connection?provider=.
func (h *AIHandler) TestConnection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := h.tutor.TestConnection(c.Request.Context(), userID, c.Query("provider"))
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListErrorRecords handles GET /api/error-records?subject=&resolved=.
func (h *AIHandler) ListErrorRecords(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	filter := repository.ErrorRecordFilter{Subject: c.Query("subject")}
	if raw := c.Query("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolved must be true or false"})
			return
		}
		filter.Resolved = &resolved
	}

	records, err := h.tutor.ListErrorRecords(c.Request.Context(), userID, filter)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records, "total": len(records)})
}

// ResolveErrorRecord handles POST /api/error-records/:id/resolve.
func (h *AIHandler) ResolveErrorRecord(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.tutor.ResolveErrorRecord(c.Request.Context(), userID, id); err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "error record resolved"})
}
