// Package repository provides database access layer.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edu-ai-gateway/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvariantViolation is returned when a mutation would break a store-level rule.
	ErrInvariantViolation = errors.New("invariant violation")
)

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return err
}

// UserRepository handles user data access.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Update updates a user.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// CallRecordRepository handles call record data access.
type CallRecordRepository struct {
	db *gorm.DB
}

// NewCallRecordRepository creates a new call record repository.
func NewCallRecordRepository(db *gorm.DB) *CallRecordRepository {
	return &CallRecordRepository{db: db}
}

// Create inserts a call record.
func (r *CallRecordRepository) Create(ctx context.Context, record *models.CallRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// CallRecordFilter narrows call record queries. Zero values are ignored.
type CallRecordFilter struct {
	UserID   *uuid.UUID
	Provider string
	Tag      models.FunctionTag
	From     time.Time
	To       time.Time
}

func (f CallRecordFilter) apply(q *gorm.DB) *gorm.DB {
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Provider != "" {
		q = q.Where("provider_internal_name = ?", f.Provider)
	}
	if f.Tag != "" {
		q = q.Where("function_tag = ?", f.Tag)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To)
	}
	return q
}

// Find returns records matching the filter, newest first. limit <= 0 means no limit.
func (r *CallRecordRepository) Find(ctx context.Context, filter CallRecordFilter, limit int) ([]models.CallRecord, error) {
	var records []models.CallRecord
	q := filter.apply(r.db.WithContext(ctx).Model(&models.CallRecord{})).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of records matching the filter.
func (r *CallRecordRepository) Count(ctx context.Context, filter CallRecordFilter) (int64, error) {
	var count int64
	err := filter.apply(r.db.WithContext(ctx).Model(&models.CallRecord{})).Count(&count).Error
	return count, err
}

// ErrorRecordRepository handles error record data access.
type ErrorRecordRepository struct {
	db *gorm.DB
}

// NewErrorRecordRepository creates a new error record repository.
func NewErrorRecordRepository(db *gorm.DB) *ErrorRecordRepository {
	return &ErrorRecordRepository{db: db}
}

// CreateBatch inserts several error records at once.
func (r *ErrorRecordRepository) CreateBatch(ctx context.Context, records []models.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

// ErrorRecordFilter narrows error record queries.
type ErrorRecordFilter struct {
	Subject  string
	Resolved *bool
	From     time.Time
	To       time.Time
}

// GetByUser returns a user's error records, newest first.
func (r *ErrorRecordRepository) GetByUser(ctx context.Context, userID uuid.UUID, filter ErrorRecordFilter) ([]models.ErrorRecord, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Subject != "" {
		q = q.Where("subject = ?", filter.Subject)
	}
	if filter.Resolved != nil {
		q = q.Where("is_resolved = ?", *filter.Resolved)
	}
	if !filter.From.IsZero() {
		q = q.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("created_at <= ?", filter.To)
	}

	var records []models.ErrorRecord
	if err := q.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// MarkResolved flags one of the user's error records as resolved.
func (r *ErrorRecordRepository) MarkResolved(ctx context.Context, userID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.ErrorRecord{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_resolved", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExerciseRepository handles generated exercise data access.
type ExerciseRepository struct {
	db *gorm.DB
}

// NewExerciseRepository creates a new exercise repository.
func NewExerciseRepository(db *gorm.DB) *ExerciseRepository {
	return &ExerciseRepository{db: db}
}

// CreateBatch inserts generated exercises.
func (r *ExerciseRepository) CreateBatch(ctx context.Context, exercises []models.Exercise) error {
	if len(exercises) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&exercises).Error
}

// GetByUser returns the most recent exercises generated for a user.
func (r *ExerciseRepository) GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Exercise, error) {
	var exercises []models.Exercise
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&exercises).Error; err != nil {
		return nil, err
	}
	return exercises, nil
}
