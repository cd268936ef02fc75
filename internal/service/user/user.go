// Package user provides account services for students, parents and staff.
package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"edu-ai-gateway/internal/config"
	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Roles.
const (
	RoleStudent     = "student"
	RoleParent      = "parent"
	RoleTeacher     = "teacher"
	RoleInstitution = "institution"
	RoleAdmin       = "admin"
)

const minPasswordLength = 6

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned when a deactivated user signs in.
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrValidation marks registration or profile input that cannot be stored.
	ErrValidation = errors.New("invalid user input")
)

// Store is the user persistence.
type Store interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// Service handles user accounts.
type Service struct {
	users  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new user service.
func NewService(users Store, logger *zap.Logger) *Service {
	return &Service{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterInput describes a new account. Admins cannot self-register.
type RegisterInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"omitempty,oneof=student parent teacher institution"`
	Grade    string `json:"grade"`
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	if in.Role == "" {
		in.Role = RoleStudent
	}
	if !selfServiceRole(in.Role) {
		return nil, fmt.Errorf("%w: role %q cannot be registered", ErrValidation, in.Role)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", repository.ErrInvariantViolation)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		Grade:        in.Grade,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("role", user.Role))
	return user, nil
}

// Authenticate checks an email and password and stamps the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	now := s.now()
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Warn("failed to stamp login time", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	return user, nil
}

// GetByID retrieves a user by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// ProfileInput holds the editable profile fields; nil fields are left alone.
type ProfileInput struct {
	Name  *string `json:"name"`
	Grade *string `json:"grade"`
}

// UpdateProfile updates the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileInput) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		user.Name = name
	}
	if in.Grade != nil {
		user.Grade = *in.Grade
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, oldPass, newPass string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPass)); err != nil {
		return ErrInvalidCredentials
	}
	if len(newPass) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPass), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	return s.users.Update(ctx, user)
}

// EnsureAdmin creates the configured admin account when it does not exist yet.
// Nothing happens when no admin email or password is configured.
func (s *Service) EnsureAdmin(ctx context.Context, cfg *config.AdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	email, err := normalizeEmail(cfg.Email)
	if err != nil {
		return err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         cfg.Name,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return err
	}

	s.logger.Info("admin user created", zap.String("email", email))
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", ErrValidation, raw)
	}
	return email, nil
}

func selfServiceRole(role string) bool {
	switch role {
	case RoleStudent, RoleParent, RoleTeacher, RoleInstitution:
		return true
	}
	return false
}
