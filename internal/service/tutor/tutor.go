// Package tutor implements the tutoring features on top of the AI gateway.
package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/repository"
	"edu-ai-gateway/internal/service/gateway"
	"edu-ai-gateway/internal/service/provider"
	"edu-ai-gateway/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrValidation marks a request the tutor cannot act on.
var ErrValidation = errors.New("invalid request")

// Question types.
const (
	QuestionChoice = "choice"
	QuestionFill   = "fill"
	QuestionSolve  = "solve"
	QuestionJudge  = "judge"
)

const maxQuestions = 20

// Gateway dispatches AI calls.
type Gateway interface {
	Invoke(ctx context.Context, req *gateway.Request) (*gateway.Response, error)
}

// ExerciseStore persists generated exercises.
type ExerciseStore interface {
	CreateBatch(ctx context.Context, exercises []models.Exercise) error
}

// ErrorRecordStore persists and queries error records.
type ErrorRecordStore interface {
	CreateBatch(ctx context.Context, records []models.ErrorRecord) error
	GetByUser(ctx context.Context, userID uuid.UUID, filter repository.ErrorRecordFilter) ([]models.ErrorRecord, error)
	MarkResolved(ctx context.Context, userID, id uuid.UUID) error
}

// Service runs tutoring operations.
type Service struct {
	gateway   Gateway
	exercises ExerciseStore
	errors    ErrorRecordStore
	archiver  storage.Archiver
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a tutor service. A nil archiver disables photo archiving.
func NewService(gw Gateway, exercises ExerciseStore, errs ErrorRecordStore, archiver storage.Archiver, logger *zap.Logger) *Service {
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	return &Service{
		gateway:   gw,
		exercises: exercises,
		errors:    errs,
		archiver:  archiver,
		logger:    logger,
		now:       time.Now,
	}
}

// Outcome is the caller-facing result shared by every AI operation. Result
// holds the recovered object, or the fallback payload when Degraded.
type Outcome struct {
	Success   bool                   `json:"success"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Message   string                 `json:"message"`
	Provider  string                 `json:"provider,omitempty"`
	ModelUsed string                 `json:"model_used,omitempty"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   string                 `json:"details,omitempty"`
}

func outcomeOf(resp *gateway.Response, ok string) Outcome {
	out := Outcome{
		Success:   resp.Success,
		Degraded:  resp.Degraded,
		Provider:  resp.Provider,
		ModelUsed: resp.ModelUsed,
		Result:    resp.Result,
		Error:     resp.Error,
		Details:   resp.Details,
	}
	switch {
	case !resp.Success:
		out.Message = "AI服务调用失败"
	case resp.Degraded:
		out.Message = "AI返回内容无法解析为JSON"
	default:
		out.Message = ok
	}
	return out
}

func (s *Service) invoke(ctx context.Context, userID uuid.UUID, tag models.FunctionTag, providerName string, messages ...provider.Message) (*gateway.Response, error) {
	var uid *uuid.UUID
	if userID != uuid.Nil {
		uid = &userID
	}
	return s.gateway.Invoke(ctx, &gateway.Request{
		UserID:      uid,
		FunctionTag: tag,
		Provider:    providerName,
		Messages:    messages,
	})
}

// ExerciseRequest asks for generated practice questions.
type ExerciseRequest struct {
	Subject        string `json:"subject" binding:"required"`
	Grade          string `json:"grade" binding:"required"`
	KnowledgePoint string `json:"knowledge_point"`
	QuestionType   string `json:"question_type" binding:"omitempty,oneof=choice fill solve judge"`
	QuestionCount  int    `json:"question_count" binding:"omitempty,min=1,max=20"`
	Difficulty     int    `json:"difficulty" binding:"omitempty,min=1,max=5"`
	Provider       string `json:"provider"`
}

func (r *ExerciseRequest) normalize() error {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Grade = strings.TrimSpace(r.Grade)
	if r.Subject == "" || r.Grade == "" {
		return fmt.Errorf("%w: subject and grade are required", ErrValidation)
	}
	if r.QuestionType == "" {
		r.QuestionType = QuestionChoice
	}
	if _, ok := questionTypeNames[r.QuestionType]; !ok {
		return fmt.Errorf("%w: unknown question type %q", ErrValidation, r.QuestionType)
	}
	if r.QuestionCount == 0 {
		r.QuestionCount = 5
	}
	if r.QuestionCount < 1 || r.QuestionCount > maxQuestions {
		return fmt.Errorf("%w: question_count must be between 1 and %d", ErrValidation, maxQuestions)
	}
	if r.Difficulty == 0 {
		r.Difficulty = 2
	}
	if r.Difficulty < 1 || r.Difficulty > 5 {
		return fmt.Errorf("%w: difficulty must be between 1 and 5", ErrValidation)
	}
	return nil
}

// Question is one normalized generated question.
type Question struct {
	ID             uuid.UUID   `json:"id,omitempty"`
	Type           string      `json:"type"`
	Content        string      `json:"content"`
	Options        interface{} `json:"options,omitempty"`
	Answer         string      `json:"answer"`
	Explanation    string      `json:"explanation"`
	KnowledgePoint string      `json:"knowledge_point"`
	Difficulty     int         `json:"difficulty"`
}

// ExerciseResult is the outcome of GenerateExercise.
type ExerciseResult struct {
	Outcome
	Questions []Question `json:"questions"`
}

// GenerateExercise asks the model for questions, normalizes them and stores them.
func (s *Service) GenerateExercise(ctx context.Context, userID uuid.UUID, req ExerciseRequest) (*ExerciseResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	resp, err := s.invoke(ctx, userID, models.FunctionGenerateExercise, req.Provider,
		provider.TextMessage(provider.RoleSystem, teacherPersona(req.Grade, req.Subject)),
		provider.TextMessage(provider.RoleUser, exercisePrompt(&req)),
	)
	if err != nil {
		return nil, err
	}

	result := &ExerciseResult{Outcome: outcomeOf(resp, "题目生成成功"), Questions: []Question{}}
	if !resp.Success || resp.Degraded {
		return result, nil
	}

	for _, raw := range listOf(resp.Result["questions"]) {
		q, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		question := normalizeQuestion(q, &req)
		if question.Content == "" {
			continue
		}
		result.Questions = append(result.Questions, question)
		if len(result.Questions) == req.QuestionCount {
			break
		}
	}
	if len(result.Questions) == 0 {
		result.Message = "AI未返回有效题目"
		return result, nil
	}

	s.saveExercises(ctx, userID, &req, resp.ModelUsed, result.Questions)
	return result, nil
}

func normalizeQuestion(q map[string]interface{}, req *ExerciseRequest) Question {
	out := Question{
		Type:           firstString(q, "type", "question_type"),
		Content:        firstString(q, "content", "question_text", "question"),
		Options:        q["options"],
		Answer:         firstString(q, "answer", "correct_answer"),
		Explanation:    firstString(q, "explanation", "analysis"),
		KnowledgePoint: firstString(q, "knowledge_point"),
		Difficulty:     intOf(q["difficulty"]),
	}
	if _, ok := questionTypeNames[out.Type]; !ok {
		out.Type = req.QuestionType
	}
	if out.KnowledgePoint == "" {
		out.KnowledgePoint = req.KnowledgePoint
	}
	if out.KnowledgePoint == "" {
		out.KnowledgePoint = req.Grade + req.Subject
	}
	if out.Difficulty < 1 || out.Difficulty > 5 {
		out.Difficulty = req.Difficulty
	}
	return out
}

// saveExercises stores questions and stamps their ids. Failures are logged;
// the generated questions are still returned.
func (s *Service) saveExercises(ctx context.Context, userID uuid.UUID, req *ExerciseRequest, model string, questions []Question) {
	var uid *uuid.UUID
	if userID != uuid.Nil {
		uid = &userID
	}

	rows := make([]models.Exercise, len(questions))
	for i, q := range questions {
		rows[i] = models.Exercise{
			BaseModel:      models.BaseModel{ID: uuid.New()},
			UserID:         uid,
			Subject:        req.Subject,
			Grade:          req.Grade,
			QuestionType:   q.Type,
			KnowledgePoint: q.KnowledgePoint,
			Difficulty:     q.Difficulty,
			Content:        q.Content,
			Answer:         q.Answer,
			Explanation:    q.Explanation,
			ModelUsed:      model,
		}
		if q.Options != nil {
			if data, err := json.Marshal(q.Options); err == nil {
				rows[i].Options = datatypes.JSON(data)
			}
		}
	}

	if err := s.exercises.CreateBatch(ctx, rows); err != nil {
		s.logger.Error("failed to save exercises", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	for i := range questions {
		questions[i].ID = rows[i].ID
	}
}

// AnalysisRequest asks for an explanation of a student's answer.
type AnalysisRequest struct {
	Subject       string `json:"subject" binding:"required"`
	Grade         string `json:"grade"`
	Question      string `json:"question" binding:"required"`
	StudentAnswer string `json:"student_answer" binding:"required"`
	CorrectAnswer string `json:"correct_answer"`
	Provider      string `json:"provider"`
}

// GenerateAnalysis explains an answer. An answer judged wrong is stored as an
// error record.
func (s *Service) GenerateAnalysis(ctx context.Context, userID uuid.UUID, req AnalysisRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.StudentAnswer) == "" {
		return nil, fmt.Errorf("%w: question and student_answer are required", ErrValidation)
	}

	resp, err := s.invoke(ctx, userID, models.FunctionGenerateAnalysis, req.Provider,
		provider.TextMessage(provider.RoleSystem, teacherPersona(req.Grade, req.Subject)),
		provider.TextMessage(provider.RoleUser, analysisPrompt(&req)),
	)
	if err != nil {
		return nil, err
	}

	out := outcomeOf(resp, "解析生成成功")
	if !resp.Success || resp.Degraded {
		return &out, nil
	}

	if correct, ok := resp.Result["is_correct"].(bool); ok && !correct {
		answer := req.CorrectAnswer
		if answer == "" {
			answer = firstString(resp.Result, "correct_answer")
		}
		errorType := firstString(resp.Result, "error_type")
		if errorType == "" {
			errorType = "练习错题"
		}
		s.saveErrorRecords(ctx, userID, []models.ErrorRecord{{
			UserID:         userID,
			Subject:        req.Subject,
			Grade:          req.Grade,
			KnowledgePoint: joinStrings(resp.Result["knowledge_points"]),
			QuestionText:   req.Question,
			StudentAnswer:  req.StudentAnswer,
			CorrectAnswer:  answer,
			ErrorType:      errorType,
			AIAnalysis:     firstString(resp.Result, "analysis"),
		}})
	}

	return &out, nil
}

// ReportRequest selects the error records a learning report covers.
type ReportRequest struct {
	From     time.Time
	To       time.Time
	Subject  string
	Provider string
}

// ReportStatistics is computed from stored records, not taken from the model.
type ReportStatistics struct {
	TotalErrors    int      `json:"total_errors"`
	ResolvedErrors int      `json:"resolved_errors"`
	Subjects       []string `json:"subjects"`
}

// ReportResult is the outcome of AnalyzeErrors.
type ReportResult struct {
	Outcome
	Statistics ReportStatistics `json:"statistics"`
}

// AnalyzeErrors builds a learning report from the user's error records.
func (s *Service) AnalyzeErrors(ctx context.Context, userID uuid.UUID, req ReportRequest) (*ReportResult, error) {
	if req.To.IsZero() {
		req.To = s.now()
	}
	if req.From.IsZero() {
		req.From = req.To.AddDate(0, 0, -30)
	}
	if req.From.After(req.To) {
		return nil, fmt.Errorf("%w: start date is after end date", ErrValidation)
	}

	records, err := s.errors.GetByUser(ctx, userID, repository.ErrorRecordFilter{
		Subject: req.Subject,
		From:    req.From,
		To:      req.To,
	})
	if err != nil {
		return nil, fmt.Errorf("load error records: %w", err)
	}

	stats := ReportStatistics{TotalErrors: len(records), Subjects: []string{}}
	seen := make(map[string]bool)
	summaries := make([]errorSummary, 0, len(records))
	for _, r := range records {
		if r.IsResolved {
			stats.ResolvedErrors++
		}
		if r.Subject != "" && !seen[r.Subject] {
			seen[r.Subject] = true
			stats.Subjects = append(stats.Subjects, r.Subject)
		}
		summaries = append(summaries, errorSummary{
			KnowledgePoint: r.KnowledgePoint,
			ErrorType:      r.ErrorType,
			Subject:        r.Subject,
			IsResolved:     r.IsResolved,
		})
	}

	resp, err := s.invoke(ctx, userID, models.FunctionAnalyzeErrors, req.Provider,
		provider.TextMessage(provider.RoleSystem, teacherPersona("", req.Subject)),
		provider.TextMessage(provider.RoleUser, reportPrompt(req.From.Format("2006-01-02"), req.To.Format("2006-01-02"), stats, summaries)),
	)
	if err != nil {
		return nil, err
	}

	return &ReportResult{Outcome: outcomeOf(resp, "学习报告生成成功"), Statistics: stats}, nil
}

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Outcome
	Reply     string  `json:"reply,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// TestConnection sends a short prompt to check a provider is reachable. The
// reply is free text, so only transport success matters.
func (s *Service) TestConnection(ctx context.Context, userID uuid.UUID, providerName string) (*ConnectionResult, error) {
	resp, err := s.invoke(ctx, userID, models.FunctionTestConnection, providerName,
		provider.TextMessage(provider.RoleUser, connectionPrompt),
	)
	if err != nil {
		return nil, err
	}

	out := &ConnectionResult{
		Outcome: Outcome{
			Success:   resp.Success,
			Provider:  resp.Provider,
			ModelUsed: resp.ModelUsed,
			Error:     resp.Error,
			Details:   resp.Details,
		},
		Reply:     resp.Raw,
		LatencyMS: float64(resp.Latency) / float64(time.Millisecond),
	}
	if resp.Success {
		out.Message = "连接正常"
	} else {
		out.Message = "连接失败"
	}
	return out, nil
}

// ListErrorRecords returns the user's error records.
func (s *Service) ListErrorRecords(ctx context.Context, userID uuid.UUID, filter repository.ErrorRecordFilter) ([]models.ErrorRecord, error) {
	return s.errors.GetByUser(ctx, userID, filter)
}

// ResolveErrorRecord marks one of the user's error records resolved.
func (s *Service) ResolveErrorRecord(ctx context.Context, userID, id uuid.UUID) error {
	return s.errors.MarkResolved(ctx, userID, id)
}

func (s *Service) saveErrorRecords(ctx context.Context, userID uuid.UUID, records []models.ErrorRecord) int {
	if len(records) == 0 {
		return 0
	}
	if err := s.errors.CreateBatch(ctx, records); err != nil {
		s.logger.Error("failed to save error records",
			zap.String("user_id", userID.String()),
			zap.Int("count", len(records)),
			zap.Error(err),
		)
		return 0
	}
	return len(records)
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func intOf(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	}
	return 0
}

func listOf(v interface{}) []interface{} {
	list, _ := v.([]interface{})
	return list
}

func joinStrings(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	var parts []string
	for _, item := range listOf(v) {
		if s, ok := item.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "、")
}
