package handlers

import (
	"context"
	"net/http"
	"time"

	"edu-ai-gateway/internal/config"
	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/service/user"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserService is the account surface the auth handler needs.
type UserService interface {
	Register(ctx context.Context, in user.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, in user.ProfileInput) (*models.User, error)
	ChangePassword(ctx context.Context, id uuid.UUID, oldPass, newPass string) error
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users     UserService
	jwtConfig *config.JWTConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users UserService, jwtConfig *config.JWTConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:     users,
		jwtConfig: jwtConfig,
		logger:    logger,
		now:       time.Now,
	}
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req user.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "user": u})
}

// LoginRequest represents login request.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials and issues a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	token, expires, err := h.generateToken(u)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"expires_at": expires,
		"user":       u,
	})
}

// GetProfile returns the caller's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	u, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, u)
}

// UpdateProfile updates the caller's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	var req user.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := h.users.UpdateProfile(c.Request.Context(), id, req)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, u)
}

// ChangePasswordRequest represents password change request.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword changes the caller's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	id, ok := currentUser(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), id, req.OldPassword, req.NewPassword); err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "password changed"})
}

func (h *AuthHandler) generateToken(u *models.User) (string, time.Time, error) {
	now := h.now()
	expires := now.Add(h.jwtConfig.ExpiresIn)
	claims := jwt.MapClaims{
		"sub":   u.ID.String(),
		"email": u.Email,
		"role":  u.Role,
		"exp":   expires.Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.jwtConfig.Secret))
	return signed, expires, err
}
