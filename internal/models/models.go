// Package models defines database models for the application.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BaseModel provides common fields for all models.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (m *BaseModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// User roles.
const (
	RoleStudent     = "student"
	RoleParent      = "parent"
	RoleTeacher     = "teacher"
	RoleInstitution = "institution"
	RoleAdmin       = "admin"
)

// ValidRole reports whether role is one of the platform roles.
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleParent, RoleTeacher, RoleInstitution, RoleAdmin:
		return true
	}
	return false
}

// User represents a platform user.
type User struct {
	BaseModel
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Name         string     `json:"name"`
	Role         string     `gorm:"not null;default:student" json:"role"`
	Grade        string     `json:"grade,omitempty"`
	IsActive     bool       `gorm:"not null;default:false" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// ProviderConfig is an administrator-managed LLM vendor configuration.
// At most one active row carries IsDefault.
type ProviderConfig struct {
	BaseModel
	InternalName string            `gorm:"uniqueIndex;not null" json:"internal_name"`
	DisplayName  string            `json:"display_name"`
	EndpointURL  string            `gorm:"not null" json:"endpoint_url"`
	Credential   string            `gorm:"not null" json:"-"`
	MaxTokens    int               `gorm:"not null;default:2000" json:"max_tokens"`
	Temperature  float64           `gorm:"not null;default:0.7" json:"temperature"`
	ExtraParams  datatypes.JSONMap `json:"extra_params,omitempty"`
	IsActive     bool              `gorm:"not null;default:false;index" json:"is_active"`
	IsDefault    bool              `gorm:"not null;default:false;index" json:"is_default"`
	UsageCount   int64             `gorm:"not null;default:0" json:"usage_count"`
	LastUsed     *time.Time        `json:"last_used,omitempty"`
}

// ExtraString returns a string-valued extra param or fallback.
func (p *ProviderConfig) ExtraString(key, fallback string) string {
	if p.ExtraParams == nil {
		return fallback
	}
	if v, ok := p.ExtraParams[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// FunctionTag labels the business operation behind an AI call.
type FunctionTag string

// Function tags.
const (
	FunctionGenerateExercise FunctionTag = "generate_exercise"
	FunctionGenerateAnalysis FunctionTag = "generate_analysis"
	FunctionAnalyzeErrors    FunctionTag = "analyze_errors"
	FunctionPhotoCorrection  FunctionTag = "photo_correction"
	FunctionTestConnection   FunctionTag = "test_connection"
)

// Valid reports whether the tag is known.
func (f FunctionTag) Valid() bool {
	switch f {
	case FunctionGenerateExercise, FunctionGenerateAnalysis, FunctionAnalyzeErrors,
		FunctionPhotoCorrection, FunctionTestConnection:
		return true
	}
	return false
}

// CallRecord is written once per dispatched AI call and never updated.
type CallRecord struct {
	ID                   uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID               *uuid.UUID  `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ProviderInternalName string      `gorm:"not null;index" json:"provider_internal_name"`
	FunctionTag          FunctionTag `gorm:"type:varchar(32);not null;index" json:"function_tag"`
	PromptTokens         int         `json:"prompt_tokens"`
	CompletionTokens     int         `json:"completion_tokens"`
	TotalTokens          int         `json:"total_tokens"`
	LatencySeconds       float64     `json:"latency_seconds"`
	Success              bool        `gorm:"not null;default:false;index" json:"success"`
	ErrorMessage         string      `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt            time.Time   `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (r *CallRecord) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ErrorRecord is a question a student answered incorrectly.
type ErrorRecord struct {
	BaseModel
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Subject        string    `gorm:"index" json:"subject"`
	Grade          string    `json:"grade"`
	KnowledgePoint string    `json:"knowledge_point"`
	QuestionText   string    `gorm:"type:text" json:"question_text"`
	StudentAnswer  string    `gorm:"type:text" json:"student_answer"`
	CorrectAnswer  string    `gorm:"type:text" json:"correct_answer"`
	ErrorType      string    `json:"error_type"`
	AIAnalysis     string    `gorm:"type:text" json:"ai_analysis"`
	IsResolved     bool      `gorm:"not null;default:false" json:"is_resolved"`
}

// Exercise is a generated practice question.
type Exercise struct {
	BaseModel
	UserID         *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Subject        string         `gorm:"index" json:"subject"`
	Grade          string         `json:"grade"`
	QuestionType   string         `json:"question_type"`
	KnowledgePoint string         `json:"knowledge_point"`
	Difficulty     int            `json:"difficulty"`
	Content        string         `gorm:"type:text" json:"content"`
	Options        datatypes.JSON `json:"options,omitempty"`
	Answer         string         `gorm:"type:text" json:"answer"`
	Explanation    string         `gorm:"type:text" json:"explanation"`
	ModelUsed      string         `json:"model_used"`
}
