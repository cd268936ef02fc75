package tutor

import (
	"context"
	"fmt"
	"strings"

	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/service/provider"
	"edu-ai-gateway/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Photo correction modes.
const (
	PhotoHomework = "homework"
	PhotoQuestion = "question"
)

// PhotoConfig tunes a photo correction.
type PhotoConfig struct {
	Subject              string `json:"subject"`
	Grade                string `json:"grade"`
	NeedExplanation      *bool  `json:"need_explanation"`
	NeedSimilarQuestions bool   `json:"need_similar_questions"`
}

func (c *PhotoConfig) explain() bool {
	return c.NeedExplanation == nil || *c.NeedExplanation
}

// PhotoRequest carries a homework or question photo.
type PhotoRequest struct {
	// Image is base64 or a data URI.
	Image    string      `json:"image" binding:"required"`
	Type     string      `json:"type" binding:"omitempty,oneof=homework question"`
	Config   PhotoConfig `json:"config"`
	Provider string      `json:"provider"`
}

// PhotoResult is the outcome of CorrectPhoto.
type PhotoResult struct {
	Outcome
	ImageURL          string `json:"image_url,omitempty"`
	ErrorRecordsSaved int    `json:"error_records_saved"`
}

// CorrectPhoto grades a homework photo or solves a question photo. Homework
// corrections marked incorrect become error records. A response that cannot be
// parsed is returned degraded; no corrections are invented.
func (s *Service) CorrectPhoto(ctx context.Context, userID uuid.UUID, req PhotoRequest) (*PhotoResult, error) {
	if req.Type == "" {
		req.Type = PhotoHomework
	}
	if req.Type != PhotoHomework && req.Type != PhotoQuestion {
		return nil, fmt.Errorf("%w: unknown photo type %q", ErrValidation, req.Type)
	}
	if req.Config.Subject == "" {
		req.Config.Subject = "数学"
	}
	if req.Config.Grade == "" {
		req.Config.Grade = "小学"
	}

	data, contentType, err := storage.DecodeImage(req.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	result := &PhotoResult{}
	result.ImageURL = s.archive(ctx, userID, data, contentType)

	prompt := homeworkPrompt(&req.Config)
	if req.Type == PhotoQuestion {
		prompt = questionPrompt(&req.Config)
	}

	resp, err := s.invoke(ctx, userID, models.FunctionPhotoCorrection, req.Provider,
		provider.TextMessage(provider.RoleSystem, prompt),
		provider.PartsMessage(provider.RoleUser,
			provider.Part{Image: storage.DataURI(data, contentType)},
			provider.Part{Text: fmt.Sprintf("请批改这份%s作业，学生年级：%s。", req.Config.Subject, req.Config.Grade)},
		),
	)
	if err != nil {
		return nil, err
	}

	result.Outcome = outcomeOf(resp, "批改完成")
	if !resp.Success || resp.Degraded || req.Type != PhotoHomework {
		return result, nil
	}

	var records []models.ErrorRecord
	for _, raw := range listOf(resp.Result["corrections"]) {
		c, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if correct, ok := c["is_correct"].(bool); !ok || correct {
			continue
		}
		records = append(records, models.ErrorRecord{
			UserID:         userID,
			Subject:        req.Config.Subject,
			Grade:          req.Config.Grade,
			KnowledgePoint: joinStrings(c["knowledge_points"]),
			QuestionText:   firstString(c, "question", "question_text"),
			StudentAnswer:  firstString(c, "student_answer"),
			CorrectAnswer:  firstString(c, "correct_answer"),
			ErrorType:      "作业错题",
			AIAnalysis:     firstString(c, "explanation", "error_analysis"),
		})
	}
	result.ErrorRecordsSaved = s.saveErrorRecords(ctx, userID, records)

	return result, nil
}

// archive stores the photo; failures only cost the archive URL.
func (s *Service) archive(ctx context.Context, userID uuid.UUID, data []byte, contentType string) string {
	key := storage.PhotoKey(userID, contentType, s.now())
	url, err := s.archiver.Put(ctx, key, data, contentType)
	if err != nil {
		s.logger.Warn("failed to archive photo", zap.String("key", key), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(url)
}
