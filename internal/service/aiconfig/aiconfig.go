// Package aiconfig administers AI provider configurations.
package aiconfig

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"edu-ai-gateway/internal/crypto"
	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/service/gateway"
	"edu-ai-gateway/internal/service/provider"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// ErrValidation marks admin input that cannot be stored.
var ErrValidation = errors.New("invalid provider config")

var internalNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,49}$`)

const probeConcurrency = 4

// Store is the provider configuration persistence.
type Store interface {
	Create(ctx context.Context, cfg *models.ProviderConfig) error
	CreateDefault(ctx context.Context, cfg *models.ProviderConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ProviderConfig, error)
	List(ctx context.Context) ([]models.ProviderConfig, error)
	ListActive(ctx context.Context) ([]models.ProviderConfig, error)
	Update(ctx context.Context, cfg *models.ProviderConfig) error
	SetDefault(ctx context.Context, id uuid.UUID) error
	ToggleActive(ctx context.Context, id uuid.UUID) (*models.ProviderConfig, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Encrypter seals credentials at rest.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Invoker dispatches AI calls.
type Invoker interface {
	Invoke(ctx context.Context, req *gateway.Request) (*gateway.Response, error)
}

// Service administers provider configurations.
type Service struct {
	store   Store
	secrets Encrypter
	gateway Invoker
	logger  *zap.Logger
}

// NewService creates a new provider admin service.
func NewService(store Store, secrets Encrypter, gw Invoker, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		secrets: secrets,
		gateway: gw,
		logger:  logger,
	}
}

// ProviderView is a config as shown to admins; the credential is masked.
type ProviderView struct {
	models.ProviderConfig
	CredentialMasked string `json:"credential_masked"`
}

func (s *Service) view(cfg *models.ProviderConfig) ProviderView {
	plain, err := s.secrets.Decrypt(cfg.Credential)
	if err != nil {
		plain = ""
	}
	return ProviderView{ProviderConfig: *cfg, CredentialMasked: crypto.Mask(plain)}
}

// List returns every config.
func (s *Service) List(ctx context.Context) ([]ProviderView, error) {
	cfgs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProviderView, len(cfgs))
	for i := range cfgs {
		views[i] = s.view(&cfgs[i])
	}
	return views, nil
}

// Get returns one config.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ProviderView, error) {
	cfg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v := s.view(cfg)
	return &v, nil
}

// CreateInput describes a new provider config.
type CreateInput struct {
	InternalName string                 `json:"internal_name" binding:"required"`
	DisplayName  string                 `json:"display_name"`
	EndpointURL  string                 `json:"endpoint_url" binding:"required"`
	Credential   string                 `json:"credential" binding:"required"`
	MaxTokens    int                    `json:"max_tokens"`
	Temperature  *float64               `json:"temperature"`
	ExtraParams  map[string]interface{} `json:"extra_params"`
	IsActive     *bool                  `json:"is_active"`
	IsDefault    bool                   `json:"is_default"`
}

// Create validates and stores a config. With IsDefault the insert and the
// default switch happen atomically.
func (s *Service) Create(ctx context.Context, in CreateInput) (*ProviderView, error) {
	in.InternalName = strings.TrimSpace(in.InternalName)
	if !internalNamePattern.MatchString(in.InternalName) {
		return nil, fmt.Errorf("%w: internal_name must be 2-50 lowercase letters, digits, '-' or '_'", ErrValidation)
	}
	if err := validateEndpoint(in.EndpointURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Credential) == "" {
		return nil, fmt.Errorf("%w: credential is required", ErrValidation)
	}

	cfg := &models.ProviderConfig{
		InternalName: in.InternalName,
		DisplayName:  in.DisplayName,
		EndpointURL:  in.EndpointURL,
		MaxTokens:    2000,
		Temperature:  0.7,
		ExtraParams:  datatypes.JSONMap(in.ExtraParams),
		IsActive:     in.IsActive == nil || *in.IsActive,
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.InternalName
	}
	if in.MaxTokens != 0 {
		cfg.MaxTokens = in.MaxTokens
	}
	if in.Temperature != nil {
		cfg.Temperature = *in.Temperature
	}
	if err := validateLimits(cfg.MaxTokens, cfg.Temperature); err != nil {
		return nil, err
	}
	if in.IsDefault && !cfg.IsActive {
		return nil, fmt.Errorf("%w: an inactive provider cannot be the default", ErrValidation)
	}

	credential, err := s.secrets.Encrypt(in.Credential)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}
	cfg.Credential = credential

	create := s.store.Create
	if in.IsDefault {
		create = s.store.CreateDefault
	}
	if err := create(ctx, cfg); err != nil {
		return nil, err
	}
	s.logger.Info("provider config created",
		zap.String("provider", cfg.InternalName),
		zap.Bool("default", cfg.IsDefault),
	)

	v := s.view(cfg)
	return &v, nil
}

// UpdateInput holds the fields to change; nil fields are left alone.
type UpdateInput struct {
	DisplayName *string                `json:"display_name"`
	EndpointURL *string                `json:"endpoint_url"`
	Credential  *string                `json:"credential"`
	MaxTokens   *int                   `json:"max_tokens"`
	Temperature *float64               `json:"temperature"`
	ExtraParams map[string]interface{} `json:"extra_params"`
}

// Update applies a partial update. A new credential is re-encrypted.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*ProviderView, error) {
	cfg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		cfg.DisplayName = *in.DisplayName
	}
	if in.EndpointURL != nil {
		if err := validateEndpoint(*in.EndpointURL); err != nil {
			return nil, err
		}
		cfg.EndpointURL = *in.EndpointURL
	}
	if in.MaxTokens != nil {
		cfg.MaxTokens = *in.MaxTokens
	}
	if in.Temperature != nil {
		cfg.Temperature = *in.Temperature
	}
	if err := validateLimits(cfg.MaxTokens, cfg.Temperature); err != nil {
		return nil, err
	}
	if in.ExtraParams != nil {
		cfg.ExtraParams = datatypes.JSONMap(in.ExtraParams)
	}
	if in.Credential != nil {
		if strings.TrimSpace(*in.Credential) == "" {
			return nil, fmt.Errorf("%w: credential cannot be empty", ErrValidation)
		}
		if cfg.Credential, err = s.secrets.Encrypt(*in.Credential); err != nil {
			return nil, fmt.Errorf("encrypt credential: %w", err)
		}
	}

	if err := s.store.Update(ctx, cfg); err != nil {
		return nil, err
	}
	s.logger.Info("provider config updated", zap.String("provider", cfg.InternalName))

	v := s.view(cfg)
	return &v, nil
}

// SetDefault makes id the default provider.
func (s *Service) SetDefault(ctx context.Context, id uuid.UUID) (*ProviderView, error) {
	if err := s.store.SetDefault(ctx, id); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ToggleActive flips whether id is active.
func (s *Service) ToggleActive(ctx context.Context, id uuid.UUID) (*ProviderView, error) {
	cfg, err := s.store.ToggleActive(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("provider config toggled",
		zap.String("provider", cfg.InternalName),
		zap.Bool("active", cfg.IsActive),
	)
	v := s.view(cfg)
	return &v, nil
}

// Delete removes id unless it is the default.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("provider config deleted", zap.String("id", id.String()))
	return nil
}

// ProbeResult is the connectivity of one provider.
type ProbeResult struct {
	ID           uuid.UUID `json:"id"`
	InternalName string    `json:"internal_name"`
	Success      bool      `json:"success"`
	LatencyMS    float64   `json:"latency_ms"`
	ModelUsed    string    `json:"model_used,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Test sends a connectivity prompt through the gateway to provider id.
func (s *Service) Test(ctx context.Context, id uuid.UUID, userID *uuid.UUID) (*ProbeResult, error) {
	cfg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res := s.probe(ctx, cfg, userID)
	return &res, nil
}

// ProbeAll tests every active provider concurrently.
func (s *Service) ProbeAll(ctx context.Context) ([]ProbeResult, error) {
	cfgs, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ProbeResult, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i := range cfgs {
		g.Go(func() error {
			results[i] = s.probe(gctx, &cfgs[i], nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) probe(ctx context.Context, cfg *models.ProviderConfig, userID *uuid.UUID) ProbeResult {
	result := ProbeResult{ID: cfg.ID, InternalName: cfg.InternalName}

	resp, err := s.gateway.Invoke(ctx, &gateway.Request{
		UserID:      userID,
		FunctionTag: models.FunctionTestConnection,
		Provider:    cfg.InternalName,
		Messages:    []provider.Message{provider.TextMessage(provider.RoleUser, "你好，请回复'连接正常'")},
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = resp.Success
	result.LatencyMS = float64(resp.Latency) / float64(time.Millisecond)
	result.ModelUsed = resp.ModelUsed
	result.Error = resp.Error
	return result
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint_url must be an http(s) URL", ErrValidation)
	}
	return nil
}

func validateLimits(maxTokens int, temperature float64) error {
	if maxTokens < 1 || maxTokens > 32000 {
		return fmt.Errorf("%w: max_tokens must be between 1 and 32000", ErrValidation)
	}
	if temperature < 0 || temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrValidation)
	}
	return nil
}
